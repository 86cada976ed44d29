package ports

import "context"

// Envelope is one named message delivered to every connection in a game room.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Broadcaster fans messages out to the room of a game.
type Broadcaster interface {
	// Publish delivers the envelopes, in order, to everyone subscribed to gameID.
	// Delivery is best effort; an error means some subscribers may have missed it.
	Publish(ctx context.Context, gameID string, envelopes ...Envelope) error
}

// MultiBroadcaster publishes to several broadcasters and returns the first error.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) Publish(ctx context.Context, gameID string, envelopes ...Envelope) error {
	var first error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Publish(ctx, gameID, envelopes...); err != nil && first == nil {
			first = err
		}
	}
	return first
}
