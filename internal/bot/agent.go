package bot

import (
	"math/rand"
	"time"

	"bluff/internal/app"
	"bluff/internal/bot/brain"
	"bluff/internal/domain"
)

// Agent represents an autonomous bot player.
type Agent struct {
	ID       string
	Name     string
	Strategy Brain
	Memory   *brain.GameMemory

	rng        *rand.Rand
	considered playKey
}

// playKey identifies a play so the agent weighs each one only once.
type playKey struct {
	by        string
	count     int
	pileSize  int
	handCount int
}

// NewAgent builds an agent for identity. A nil rng is seeded from the clock.
func NewAgent(identity BotIdentity, rng *rand.Rand) (*Agent, error) {
	strategy, err := NewBrain(identity.Level)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Agent{
		ID:       identity.UserID,
		Name:     identity.DisplayName,
		Strategy: strategy,
		Memory:   brain.NewMemory(),
		rng:      rng,
	}, nil
}

// Act decides what the agent does next in the game it sees. It reports false
// when the agent has nothing to do.
func (a *Agent) Act(state app.StateView) (Move, bool) {
	g := state.Game
	if g.State != domain.StatePlaying {
		return Move{}, false
	}
	a.Memory.UpdateHand(state.PlayerHand)
	t := a.table(state)

	if g.LastPlayedBy == "" {
		a.considered = playKey{}
	} else if g.LastPlayedBy != a.ID {
		key := playKey{by: g.LastPlayedBy, count: g.LastPlayedCount, pileSize: g.PileSize, handCount: t.CardCounts[g.LastPlayedBy]}
		if key != a.considered {
			a.considered = key
			if a.Strategy.ShouldChallenge(t, a.rng) {
				return Move{Challenge: true}, true
			}
		}
	}

	if g.CurrentTurn != a.ID || len(state.PlayerHand) == 0 {
		return Move{}, false
	}
	move := a.Strategy.ChoosePlay(t, a.rng)
	if len(move.Cards) == 0 {
		return Move{}, false
	}
	a.Memory.RecordOwnPlay(a.ID, move.Cards)
	return move, true
}

// Observe feeds a committed game event into the agent's memory.
func (a *Agent) Observe(payload any) {
	switch p := payload.(type) {
	case app.PlayCardsPayload:
		if p.UserID != a.ID {
			a.Memory.RecordPlay(p.UserID, p.CardCount, p.DeclaredRank)
		}
	case app.ChallengeResultPayload:
		a.Memory.RecordChallenge(a.ID, p.ChallengedID, p.RecipientID, p.Liar, p.Revealed)
		a.considered = playKey{}
	case app.GameEndedPayload:
		a.Memory.Reset()
		a.considered = playKey{}
	}
}

func (a *Agent) table(state app.StateView) Table {
	g := state.Game
	counts := make(map[string]int, len(state.Players))
	for _, p := range state.Players {
		counts[p.UserID] = p.CardCount
	}
	return Table{
		Self:            a.ID,
		Hand:            state.PlayerHand,
		CurrentTurn:     g.CurrentTurn,
		CurrentRank:     g.CurrentRank,
		LastPlayedBy:    g.LastPlayedBy,
		LastPlayedCount: g.LastPlayedCount,
		PileSize:        g.PileSize,
		CardCounts:      counts,
		Memory:          a.Memory,
	}
}
