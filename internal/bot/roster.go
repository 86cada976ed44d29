package bot

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"bluff/internal/app"
	"bluff/internal/ports"
)

var _ ports.Broadcaster = (*Roster)(nil)

// Games is what a bot needs from the coordinator.
type Games interface {
	State(ctx context.Context, gameID, userID string) (app.StateView, error)
	PlayCards(ctx context.Context, gameID, userID string, cards []string, declaredRank string) (app.GameView, error)
	Challenge(ctx context.Context, gameID, userID string) (app.GameView, error)
}

// Roster tracks the bots seated in each game. As a Broadcaster it feeds
// committed events to those bots so they remember what was claimed and revealed.
type Roster struct {
	logger *slog.Logger

	mu    sync.Mutex
	games map[string]map[string]*Agent
}

func NewRoster(logger *slog.Logger) *Roster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Roster{logger: logger, games: make(map[string]map[string]*Agent)}
}

// Seat registers agent as playing in gameID.
func (r *Roster) Seat(gameID string, agent *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.games[gameID] == nil {
		r.games[gameID] = make(map[string]*Agent)
	}
	r.games[gameID][agent.ID] = agent
}

// Agents returns the bots in gameID ordered by id.
func (r *Roster) Agents(gameID string) []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Agent, 0, len(r.games[gameID]))
	for _, a := range r.games[gameID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unseat forgets one bot, for when a human takes its seat.
func (r *Roster) Unseat(gameID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games[gameID], userID)
}

// Remove forgets every bot in gameID.
func (r *Roster) Remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, gameID)
}

func (r *Roster) Publish(_ context.Context, gameID string, envelopes ...ports.Envelope) error {
	agents := r.Agents(gameID)
	for _, env := range envelopes {
		if env.Type == string(app.EventGameClosed) {
			r.Remove(gameID)
			return nil
		}
		for _, a := range agents {
			a.Observe(env.Data)
		}
	}
	return nil
}

// Step lets the first bot with something to do in gameID act. It reports
// whether an action was committed. Refused actions are skipped: the game moved
// on between the bot reading the state and acting.
func (r *Roster) Step(ctx context.Context, games Games, gameID string) (bool, error) {
	for _, a := range r.Agents(gameID) {
		state, err := games.State(ctx, gameID, a.ID)
		if err != nil {
			return false, err
		}
		move, ok := a.Act(state)
		if !ok {
			continue
		}

		if move.Challenge {
			_, err = games.Challenge(ctx, gameID, a.ID)
		} else {
			tokens := make([]string, len(move.Cards))
			for i, c := range move.Cards {
				tokens[i] = c.String()
			}
			_, err = games.PlayCards(ctx, gameID, a.ID, tokens, string(move.DeclaredRank))
		}
		if err != nil {
			if app.IsRefusal(err) {
				r.logger.DebugContext(ctx, "bot move refused", "game_id", gameID, "user_id", a.ID, "error", err)
				continue
			}
			return false, err
		}
		return true, nil
	}
	return false, nil
}
