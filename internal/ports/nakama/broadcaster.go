package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"bluff/internal/app"
	"bluff/internal/ports"
)

var _ ports.Broadcaster = (*roomBroadcaster)(nil)

var errNoDispatcher = errors.New("match dispatcher not bound")

// roomBroadcaster sends committed events to every presence in the match.
// The dispatcher is only valid inside a match callback, so the handler
// rebinds it at the top of each one.
type roomBroadcaster struct {
	dispatcher runtime.MatchDispatcher
	closed     bool
}

func (b *roomBroadcaster) bind(dispatcher runtime.MatchDispatcher) {
	b.dispatcher = dispatcher
}

func (b *roomBroadcaster) Publish(_ context.Context, _ string, envelopes ...ports.Envelope) error {
	if b.dispatcher == nil {
		return errNoDispatcher
	}
	for _, env := range envelopes {
		op, ok := opCodeFor(env.Type)
		if !ok {
			continue
		}
		if env.Type == string(app.EventGameClosed) {
			b.closed = true
		}
		data, err := json.Marshal(env.Data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", env.Type, err)
		}
		if err := b.dispatcher.BroadcastMessage(op, data, nil, nil, true); err != nil {
			return fmt.Errorf("broadcast %s: %w", env.Type, err)
		}
	}
	return nil
}

func opCodeFor(eventType string) (int64, bool) {
	switch app.EventKind(eventType) {
	case app.EventGameUpdate:
		return OpGameUpdate, true
	case app.EventPlayerAction:
		return OpPlayerAction, true
	case app.EventGameEnded:
		return OpGameEnded, true
	case app.EventGameClosed:
		return OpGameClosed, true
	}
	return 0, false
}
