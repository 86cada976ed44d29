package memory

import (
	"context"
	"sync"

	"bluff/internal/ports"
)

var _ ports.Broadcaster = (*Bus)(nil)

// Bus is an in-process Broadcaster. Subscribers receive envelopes on a
// buffered channel; a full subscriber drops messages rather than blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan ports.Envelope
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan ports.Envelope)}
}

// Subscribe registers interest in gameID. The returned cancel func closes the channel.
func (b *Bus) Subscribe(gameID string, buffer int) (<-chan ports.Envelope, func()) {
	ch := make(chan ports.Envelope, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[int]chan ports.Envelope)
	}
	b.subs[gameID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[gameID], id)
			if len(b.subs[gameID]) == 0 {
				delete(b.subs, gameID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(ctx context.Context, gameID string, envelopes ...ports.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, env := range envelopes {
		for _, ch := range b.subs[gameID] {
			select {
			case ch <- env:
			default:
			}
		}
	}
	return ctx.Err()
}
