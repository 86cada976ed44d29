package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bluff/internal/domain"
	"bluff/internal/ports"
)

var _ ports.GameStore = (*Store)(nil)

// Store keeps games in process memory. Every read and write copies the game,
// so callers never share state with the store.
type Store struct {
	mu    sync.RWMutex
	games map[string]*domain.Game
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{games: make(map[string]*domain.Game)}
}

func (s *Store) CreateGame(ctx context.Context, game *domain.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[game.ID]; exists {
		return fmt.Errorf("create game %s: %w", game.ID, ports.ErrConflict)
	}
	game.Version = 1
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *Store) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return g.Clone(), nil
}

func (s *Store) SaveGame(ctx context.Context, game *domain.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.games[game.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if current.Version != game.Version {
		return ports.ErrConflict
	}
	game.Version++
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.games, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListGames(ctx context.Context, state domain.State, limit int) ([]*domain.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*domain.Game, 0, len(s.games))
	for _, g := range s.games {
		if g.State == state {
			out = append(out, g.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
