package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bluff/internal/domain"
	"bluff/internal/ports"
	"bluff/internal/ports/sqlite/migrations"
)

var _ ports.GameStore = (*Store)(nil)

// Store provides SQLite-backed game persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a game SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) CreateGame(ctx context.Context, game *domain.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pile, err := ports.EncodeCards(game.Pile)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO games (
	id, name, created_by, state, max_players, current_turn, current_rank,
	pile, last_played_count, last_played_by, winner, version, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
`,
		game.ID, game.Name, game.CreatedBy, string(game.State), game.MaxPlayers,
		game.CurrentTurn, string(game.CurrentRank), string(pile),
		game.LastPlayedCount, game.LastPlayedBy, game.Winner,
		game.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	if err := insertPlayers(ctx, tx, game); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create game: %w", err)
	}
	game.Version = 1
	return nil
}

func (s *Store) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return getGame(ctx, s.sqlDB, id)
}

func (s *Store) SaveGame(ctx context.Context, game *domain.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pile, err := ports.EncodeCards(game.Pile)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE games SET
	name = ?,
	created_by = ?,
	state = ?,
	max_players = ?,
	current_turn = ?,
	current_rank = ?,
	pile = ?,
	last_played_count = ?,
	last_played_by = ?,
	winner = ?,
	version = version + 1
WHERE id = ? AND version = ?
`,
		game.Name, game.CreatedBy, string(game.State), game.MaxPlayers,
		game.CurrentTurn, string(game.CurrentRank), string(pile),
		game.LastPlayedCount, game.LastPlayedBy, game.Winner,
		game.ID, game.Version,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM games WHERE id = ?", game.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ports.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check game: %w", err)
		}
		return ports.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM game_players WHERE game_id = ?", game.ID); err != nil {
		return fmt.Errorf("clear players: %w", err)
	}
	if err := insertPlayers(ctx, tx, game); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save game: %w", err)
	}
	game.Version++
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, "DELETE FROM game_players WHERE game_id = ?", id); err != nil {
		return fmt.Errorf("delete players: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM games WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete game: %w", err)
	}
	return nil
}

// ListGames lists newest-first games in state.
func (s *Store) ListGames(ctx context.Context, state domain.State, limit int) ([]*domain.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id FROM games
WHERE state = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan game id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	rows.Close()

	games := make([]*domain.Game, 0, len(ids))
	for _, id := range ids {
		g, err := getGame(ctx, s.sqlDB, id)
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getGame(ctx context.Context, q queryer, id string) (*domain.Game, error) {
	var (
		g         domain.Game
		state     string
		rank      string
		pile      string
		createdAt int64
	)
	err := q.QueryRowContext(ctx, `
SELECT id, name, created_by, state, max_players, current_turn, current_rank,
	pile, last_played_count, last_played_by, winner, version, created_at
FROM games WHERE id = ?
`, id).Scan(
		&g.ID, &g.Name, &g.CreatedBy, &state, &g.MaxPlayers, &g.CurrentTurn, &rank,
		&pile, &g.LastPlayedCount, &g.LastPlayedBy, &g.Winner, &g.Version, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	g.State = domain.State(state)
	g.CurrentRank = domain.Rank(rank)
	g.CreatedAt = time.UnixMilli(createdAt).UTC()
	if g.Pile, err = ports.DecodeCards([]byte(pile)); err != nil {
		return nil, fmt.Errorf("game %s pile: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, `
SELECT user_id, hand, position, joined_at
FROM game_players
WHERE game_id = ?
ORDER BY position ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("get players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p        domain.Player
			hand     string
			joinedAt int64
		)
		if err := rows.Scan(&p.UserID, &hand, &p.Position, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		if p.Hand, err = ports.DecodeCards([]byte(hand)); err != nil {
			return nil, fmt.Errorf("player %s hand: %w", p.UserID, err)
		}
		p.JoinedAt = time.UnixMilli(joinedAt).UTC()
		g.Players = append(g.Players, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return &g, nil
}

func insertPlayers(ctx context.Context, tx *sql.Tx, game *domain.Game) error {
	for _, p := range game.Players {
		hand, err := ports.EncodeCards(p.Hand)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO game_players (game_id, user_id, hand, position, joined_at)
VALUES (?, ?, ?, ?, ?)
`, game.ID, p.UserID, string(hand), p.Position, p.JoinedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("insert player %s: %w", p.UserID, err)
		}
	}
	return nil
}
