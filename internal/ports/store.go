package ports

import (
	"context"
	"errors"

	"bluff/internal/domain"
)

var (
	// ErrNotFound is returned when a game id is unknown to the store.
	ErrNotFound = errors.New("game not found in store")
	// ErrConflict is returned when a save races with another writer.
	ErrConflict = errors.New("game was modified concurrently")
)

// GameStore persists games and their seats.
type GameStore interface {
	// CreateGame inserts a new game with its seats. The game's Version is set
	// to the stored revision on success.
	CreateGame(ctx context.Context, game *domain.Game) error

	// GetGame loads a game by id with players ordered by position.
	// Returns ErrNotFound when absent.
	GetGame(ctx context.Context, id string) (*domain.Game, error)

	// SaveGame replaces the game and all of its seats atomically, provided the
	// stored revision still equals game.Version. On success game.Version is
	// advanced; otherwise ErrConflict is returned and nothing is written.
	SaveGame(ctx context.Context, game *domain.Game) error

	// DeleteGame removes a game and its seats. Deleting an unknown id is not an error.
	DeleteGame(ctx context.Context, id string) error

	// ListGames returns games in the given state, newest first, at most limit entries.
	ListGames(ctx context.Context, state domain.State, limit int) ([]*domain.Game, error)
}
