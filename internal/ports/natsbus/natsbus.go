// Package natsbus fans game events out across server nodes over NATS. Each
// node publishes its committed events and relays events from other nodes
// into its local broadcaster.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"bluff/internal/ports"
)

const subjectPrefix = "bluff.games."

var _ ports.Broadcaster = (*Bus)(nil)

// Connect dials NATS with the reconnect policy every node uses.
func Connect(url, name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
	}
	return nats.Connect(url, opts...)
}

// Subject is the subject events for gameID travel on.
func Subject(gameID string) string {
	return subjectPrefix + gameID
}

// GameIDFromSubject is the inverse of Subject.
func GameIDFromSubject(subject string) (string, bool) {
	id, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok || id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}

type message struct {
	Origin    string            `json:"origin"`
	GameID    string            `json:"gameId"`
	Envelopes []relayedEnvelope `json:"envelopes"`
}

type relayedEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encode(origin, gameID string, envelopes []ports.Envelope) ([]byte, error) {
	msg := message{Origin: origin, GameID: gameID, Envelopes: make([]relayedEnvelope, 0, len(envelopes))}
	for _, env := range envelopes {
		var data json.RawMessage
		if env.Data != nil {
			b, err := json.Marshal(env.Data)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", env.Type, err)
			}
			data = b
		}
		msg.Envelopes = append(msg.Envelopes, relayedEnvelope{Type: env.Type, Data: data})
	}
	return json.Marshal(msg)
}

func decode(b []byte) (message, []ports.Envelope, error) {
	var msg message
	if err := json.Unmarshal(b, &msg); err != nil {
		return message{}, nil, err
	}
	envs := make([]ports.Envelope, 0, len(msg.Envelopes))
	for _, e := range msg.Envelopes {
		env := ports.Envelope{Type: e.Type}
		if len(e.Data) > 0 {
			env.Data = e.Data
		}
		envs = append(envs, env)
	}
	return msg, envs, nil
}

// Bus publishes this node's events and relays remote ones to local.
type Bus struct {
	nc     *nats.Conn
	origin string
	local  ports.Broadcaster
	logger *slog.Logger
	sub    *nats.Subscription
}

// New returns a bus over nc. Remote events are handed to local, which is
// normally the node's WebSocket hub.
func New(nc *nats.Conn, local ports.Broadcaster, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{nc: nc, origin: uuid.NewString(), local: local, logger: logger}
}

// Publish sends envelopes to every other node.
func (b *Bus) Publish(ctx context.Context, gameID string, envelopes ...ports.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(b.origin, gameID, envelopes)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(Subject(gameID), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Start subscribes to every game's subject.
func (b *Bus) Start() error {
	sub, err := b.nc.Subscribe(subjectPrefix+"*", func(m *nats.Msg) {
		b.relay(m.Subject, m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	b.sub = sub
	return nil
}

// Close drains the subscription.
func (b *Bus) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Drain()
}

func (b *Bus) relay(subject string, data []byte) {
	gameID, ok := GameIDFromSubject(subject)
	if !ok {
		return
	}
	msg, envs, err := decode(data)
	if err != nil {
		b.logger.Warn("bad relayed message", "subject", subject, "error", err)
		return
	}
	if msg.Origin == b.origin || len(envs) == 0 {
		return
	}
	if err := b.local.Publish(context.Background(), gameID, envs...); err != nil {
		b.logger.Warn("relay failed", "game_id", gameID, "error", err)
	}
}
