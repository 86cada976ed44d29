package app

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"bluff/internal/domain"
)

// Service contains bluff use-cases operating on domain state. It holds no
// per-game state; callers serialize access to each game.
type Service struct {
	mu    sync.Mutex // guards rng, which is shared by all games
	rng   *rand.Rand
	rules Rules
}

// NewService constructs a Service with provided rng or a time-seeded default.
func NewService(rng *rand.Rand, rules Rules) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{rng: rng, rules: rules.normalized()}
}

// Rules returns the effective table rules.
func (s *Service) Rules() Rules {
	return s.rules
}

// NewGame builds a waiting game with the creator already seated at position 0.
func (s *Service) NewGame(id, creator, name string, maxPlayers int, now time.Time) (*domain.Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.InvalidArgument("game name is required")
	}
	if creator == "" {
		return nil, domain.InvalidArgument("creator is required")
	}
	if maxPlayers == 0 {
		maxPlayers = s.rules.DefaultMaxPlayers
	}
	if maxPlayers < s.rules.MinPlayers || maxPlayers > s.rules.MaxPlayersLimit {
		return nil, domain.InvalidArgument("max players out of range")
	}

	g := &domain.Game{
		ID:         id,
		Name:       name,
		CreatedBy:  creator,
		State:      domain.StateWaiting,
		MaxPlayers: maxPlayers,
		CreatedAt:  now,
	}
	if _, err := domain.Join(g, creator, now); err != nil {
		return nil, err
	}
	return g, nil
}

// JoinGame seats a player. Re-joining emits nothing.
func (s *Service) JoinGame(g *domain.Game, userID string, now time.Time) ([]Event, error) {
	joined, err := domain.Join(g, userID, now)
	if err != nil || !joined {
		return nil, err
	}
	return []Event{gameUpdateEvent(g)}, nil
}

// LeaveGame removes a player from a waiting game.
func (s *Service) LeaveGame(g *domain.Game, userID string) ([]Event, error) {
	if err := domain.Leave(g, userID); err != nil {
		return nil, err
	}
	if len(g.Players) == 0 {
		return []Event{{Kind: EventGameClosed, Payload: GameClosedPayload{GameID: g.ID}}}, nil
	}
	return []Event{gameUpdateEvent(g)}, nil
}

// StartGame shuffles, deals and opens play.
func (s *Service) StartGame(g *domain.Game, actorUserID string) ([]Event, error) {
	s.mu.Lock()
	err := domain.Start(g, actorUserID, s.rules.MinPlayers, s.rng)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []Event{gameUpdateEvent(g)}, nil
}

// PlayCards processes a play action and emits resulting events. Tokens are
// normalized first; an unparseable token counts as a card the player does not hold.
func (s *Service) PlayCards(g *domain.Game, actorUserID string, tokens []string, declaredRank string) ([]Event, error) {
	cards := make([]domain.Card, 0, len(tokens))
	for _, t := range tokens {
		c, ok := domain.ParseCard(t)
		if !ok {
			c = domain.Card(t)
		}
		cards = append(cards, c)
	}

	res, err := domain.PlayCards(g, actorUserID, cards, declaredRank, s.rules.RankPolicy)
	if err != nil {
		return nil, err
	}

	events := []Event{
		gameUpdateEvent(g),
		{
			Kind: EventPlayerAction,
			Payload: PlayCardsPayload{
				Type:         ActionPlayCards,
				UserID:       res.UserID,
				CardCount:    res.CardCount,
				DeclaredRank: res.DeclaredRank,
			},
		},
	}
	if res.Winner != "" {
		events = append(events, Event{Kind: EventGameEnded, Payload: GameEndedPayload{WinnerID: res.Winner}})
	}
	return events, nil
}

// Challenge resolves a challenge against the pending play.
func (s *Service) Challenge(g *domain.Game, actorUserID string) ([]Event, error) {
	res, err := domain.Challenge(g, actorUserID)
	if err != nil {
		return nil, err
	}

	events := []Event{
		gameUpdateEvent(g),
		{
			Kind: EventPlayerAction,
			Payload: ChallengeResultPayload{
				Type:         ActionChallengeResult,
				Liar:         res.Liar,
				ChallengerID: res.ChallengerID,
				ChallengedID: res.ChallengedID,
				DeclaredRank: res.DeclaredRank,
				Revealed:     res.Revealed,
				RecipientID:  res.RecipientID,
				PileSize:     res.PileSize,
			},
		},
	}
	if res.Winner != "" {
		events = append(events, Event{Kind: EventGameEnded, Payload: GameEndedPayload{WinnerID: res.Winner}})
	}
	return events, nil
}
