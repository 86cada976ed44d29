package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"bluff/internal/domain"
	"bluff/internal/ports"
)

var _ ports.GameStore = (*StorageStore)(nil)

// storageModule is the slice of runtime.NakamaModule the store uses.
type storageModule interface {
	StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
	StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error
	StorageList(ctx context.Context, callerID, userID, collection string, limit int, cursor string) ([]*api.StorageObject, string, error)
}

const listPageSize = 100

// StorageStore keeps each game as one system-owned Nakama storage object.
// The object version guards writes, so two nodes never both commit on top of
// the same revision.
type StorageStore struct {
	nk storageModule
}

func NewStorageStore(nk storageModule) *StorageStore {
	return &StorageStore{nk: nk}
}

type gameRecord struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CreatedBy       string          `json:"created_by"`
	State           domain.State    `json:"state"`
	MaxPlayers      int             `json:"max_players"`
	CurrentTurn     string          `json:"current_turn,omitempty"`
	CurrentRank     domain.Rank     `json:"current_rank,omitempty"`
	Pile            json.RawMessage `json:"pile"`
	LastPlayedCount int             `json:"last_played_count"`
	LastPlayedBy    string          `json:"last_played_by,omitempty"`
	Winner          string          `json:"winner,omitempty"`
	Revision        int64           `json:"revision"`
	CreatedAt       int64           `json:"created_at"`
	Players         []playerRecord  `json:"players"`
}

type playerRecord struct {
	UserID   string          `json:"user_id"`
	Position int             `json:"position"`
	Hand     json.RawMessage `json:"hand"`
	JoinedAt int64           `json:"joined_at"`
}

func encodeGame(g *domain.Game, revision int64) (string, error) {
	pile, err := ports.EncodeCards(g.Pile)
	if err != nil {
		return "", err
	}
	rec := gameRecord{
		ID:              g.ID,
		Name:            g.Name,
		CreatedBy:       g.CreatedBy,
		State:           g.State,
		MaxPlayers:      g.MaxPlayers,
		CurrentTurn:     g.CurrentTurn,
		CurrentRank:     g.CurrentRank,
		Pile:            pile,
		LastPlayedCount: g.LastPlayedCount,
		LastPlayedBy:    g.LastPlayedBy,
		Winner:          g.Winner,
		Revision:        revision,
		CreatedAt:       g.CreatedAt.UTC().UnixMilli(),
		Players:         make([]playerRecord, 0, len(g.Players)),
	}
	for _, p := range g.Players {
		hand, err := ports.EncodeCards(p.Hand)
		if err != nil {
			return "", err
		}
		rec.Players = append(rec.Players, playerRecord{
			UserID:   p.UserID,
			Position: p.Position,
			Hand:     hand,
			JoinedAt: p.JoinedAt.UTC().UnixMilli(),
		})
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	return string(data), nil
}

func decodeGame(value string) (*domain.Game, error) {
	var rec gameRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	g := &domain.Game{
		ID:              rec.ID,
		Name:            rec.Name,
		CreatedBy:       rec.CreatedBy,
		State:           rec.State,
		MaxPlayers:      rec.MaxPlayers,
		CurrentTurn:     rec.CurrentTurn,
		CurrentRank:     rec.CurrentRank,
		LastPlayedCount: rec.LastPlayedCount,
		LastPlayedBy:    rec.LastPlayedBy,
		Winner:          rec.Winner,
		Version:         rec.Revision,
		CreatedAt:       time.UnixMilli(rec.CreatedAt).UTC(),
	}
	var err error
	if g.Pile, err = ports.DecodeCards(rec.Pile); err != nil {
		return nil, fmt.Errorf("game %s pile: %w", rec.ID, err)
	}
	for _, pr := range rec.Players {
		p := &domain.Player{
			UserID:   pr.UserID,
			Position: pr.Position,
			JoinedAt: time.UnixMilli(pr.JoinedAt).UTC(),
		}
		if p.Hand, err = ports.DecodeCards(pr.Hand); err != nil {
			return nil, fmt.Errorf("player %s hand: %w", pr.UserID, err)
		}
		g.Players = append(g.Players, p)
	}
	sort.SliceStable(g.Players, func(i, j int) bool { return g.Players[i].Position < g.Players[j].Position })
	return g, nil
}

func (s *StorageStore) write(ctx context.Context, g *domain.Game, revision int64, objectVersion string) error {
	value, err := encodeGame(g, revision)
	if err != nil {
		return err
	}
	_, err = s.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      StorageCollection,
		Key:             g.ID,
		Value:           value,
		Version:         objectVersion,
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if errors.Is(err, runtime.ErrStorageRejectedVersion) {
		return fmt.Errorf("write game %s: %w", g.ID, ports.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("write game %s: %w", g.ID, err)
	}
	return nil
}

func (s *StorageStore) read(ctx context.Context, id string) (*api.StorageObject, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: StorageCollection,
		Key:        id,
	}})
	if err != nil {
		return nil, fmt.Errorf("read game %s: %w", id, err)
	}
	if len(objects) == 0 {
		return nil, ports.ErrNotFound
	}
	return objects[0], nil
}

func (s *StorageStore) CreateGame(ctx context.Context, game *domain.Game) error {
	// "*" only writes when no object exists under the key.
	if err := s.write(ctx, game, 1, "*"); err != nil {
		return err
	}
	game.Version = 1
	return nil
}

func (s *StorageStore) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	obj, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeGame(obj.GetValue())
}

func (s *StorageStore) SaveGame(ctx context.Context, game *domain.Game) error {
	obj, err := s.read(ctx, game.ID)
	if err != nil {
		return err
	}
	stored, err := decodeGame(obj.GetValue())
	if err != nil {
		return err
	}
	if stored.Version != game.Version {
		return ports.ErrConflict
	}
	if err := s.write(ctx, game, game.Version+1, obj.GetVersion()); err != nil {
		return err
	}
	game.Version++
	return nil
}

func (s *StorageStore) DeleteGame(ctx context.Context, id string) error {
	if err := s.nk.StorageDelete(ctx, []*runtime.StorageDelete{{
		Collection: StorageCollection,
		Key:        id,
	}}); err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	return nil
}

// ListGames pages through the whole collection; Nakama storage has no
// secondary index on the game state.
func (s *StorageStore) ListGames(ctx context.Context, state domain.State, limit int) ([]*domain.Game, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	var (
		games  []*domain.Game
		cursor string
	)
	for {
		objects, next, err := s.nk.StorageList(ctx, "", "", StorageCollection, listPageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("list games: %w", err)
		}
		for _, obj := range objects {
			g, err := decodeGame(obj.GetValue())
			if err != nil {
				return nil, fmt.Errorf("list games %s: %w", obj.GetKey(), err)
			}
			if g.State == state {
				games = append(games, g)
			}
		}
		if next == "" || len(objects) == 0 {
			break
		}
		cursor = next
	}
	sort.Slice(games, func(i, j int) bool {
		if !games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].CreatedAt.After(games[j].CreatedAt)
		}
		return games[i].ID > games[j].ID
	})
	if len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}
