package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bluff/internal/domain"
	"bluff/internal/ports"
)

// ErrCoordinatorClosed is returned for actions submitted after Close.
var ErrCoordinatorClosed = errors.New("coordinator is closed")

const (
	defaultIdleTimeout = 2 * time.Minute
	defaultMailbox     = 64
	defaultListLimit   = 50
)

// Coordinator serializes every action on a game through a per-game actor and
// commits the result to the GameStore before broadcasting it.
type Coordinator struct {
	store   ports.GameStore
	bus     ports.Broadcaster
	svc     *Service
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
	mailbox int

	idleTimeout time.Duration

	mu     sync.Mutex
	actors map[string]*gameActor
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBroadcaster sets where committed events are published.
func WithBroadcaster(b ports.Broadcaster) Option {
	return func(c *Coordinator) { c.bus = b }
}

// WithService replaces the default Service.
func WithService(s *Service) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.svc = s
		}
	}
}

// WithIdleTimeout sets how long an actor with no work stays alive.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator overrides game id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// NewCoordinator wires a coordinator over store.
func NewCoordinator(store ports.GameStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		svc:         NewService(nil, DefaultRules()),
		logger:      slog.Default(),
		tracer:      otel.Tracer("bluff/app"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		mailbox:     defaultMailbox,
		idleTimeout: defaultIdleTimeout,
		actors:      make(map[string]*gameActor),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service exposes the use-case layer, e.g. for rule lookups.
func (c *Coordinator) Service() *Service {
	return c.svc
}

// ActiveGames reports how many game actors are alive.
func (c *Coordinator) ActiveGames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}

// Close stops accepting actions, finishes the ones already queued and waits
// for every actor to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()
	c.wg.Wait()
}

// CreateGame creates a waiting game seated with its creator.
func (c *Coordinator) CreateGame(ctx context.Context, creator, name string, maxPlayers int) (GameView, error) {
	ctx, span := c.tracer.Start(ctx, "bluff.CreateGame", trace.WithAttributes(attribute.String("user_id", creator)))
	defer span.End()

	g, err := c.svc.NewGame(c.newID(), creator, name, maxPlayers, c.now())
	if err != nil {
		return GameView{}, err
	}
	if err := g.CheckInvariants(); err != nil {
		return GameView{}, c.fail(ctx, span, "create", g.ID, creator, err)
	}
	if err := c.store.CreateGame(ctx, g); err != nil {
		return GameView{}, c.fail(ctx, span, "create", g.ID, creator, fmt.Errorf("create game: %w", err))
	}
	c.logger.InfoContext(ctx, "game created", "game_id", g.ID, "user_id", creator, "max_players", g.MaxPlayers)
	return NewGameView(g), nil
}

// JoinGame seats userID in a waiting game.
func (c *Coordinator) JoinGame(ctx context.Context, gameID, userID string) (GameView, error) {
	return c.mutate(ctx, gameID, userID, "join", func(g *domain.Game) ([]Event, error) {
		return c.svc.JoinGame(g, userID, c.now())
	})
}

// LeaveGame removes userID from a waiting game, deleting the game when it empties.
func (c *Coordinator) LeaveGame(ctx context.Context, gameID, userID string) (GameView, error) {
	return c.mutate(ctx, gameID, userID, "leave", func(g *domain.Game) ([]Event, error) {
		return c.svc.LeaveGame(g, userID)
	})
}

// StartGame deals the cards. Only the creator may start.
func (c *Coordinator) StartGame(ctx context.Context, gameID, userID string) (GameView, error) {
	return c.mutate(ctx, gameID, userID, "startGame", func(g *domain.Game) ([]Event, error) {
		return c.svc.StartGame(g, userID)
	})
}

// PlayCards plays cards face down under a declared rank.
func (c *Coordinator) PlayCards(ctx context.Context, gameID, userID string, cards []string, declaredRank string) (GameView, error) {
	return c.mutate(ctx, gameID, userID, "playCards", func(g *domain.Game) ([]Event, error) {
		return c.svc.PlayCards(g, userID, cards, declaredRank)
	})
}

// Challenge calls the last play.
func (c *Coordinator) Challenge(ctx context.Context, gameID, userID string) (GameView, error) {
	return c.mutate(ctx, gameID, userID, "challenge", func(g *domain.Game) ([]Event, error) {
		return c.svc.Challenge(g, userID)
	})
}

// State returns the game as seen by userID.
func (c *Coordinator) State(ctx context.Context, gameID, userID string) (StateView, error) {
	g, err := c.load(ctx, gameID)
	if err != nil {
		return StateView{}, err
	}
	return NewStateView(g, userID), nil
}

// ListWaitingGames lists joinable games, newest first.
func (c *Coordinator) ListWaitingGames(ctx context.Context, limit int) ([]LobbyEntry, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	games, err := c.store.ListGames(ctx, domain.StateWaiting, limit)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	out := make([]LobbyEntry, 0, len(games))
	for _, g := range games {
		out = append(out, newLobbyEntry(g))
	}
	return out, nil
}

func (c *Coordinator) load(ctx context.Context, gameID string) (*domain.Game, error) {
	g, err := c.store.GetGame(ctx, gameID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	return g, nil
}

// mutate runs apply on the game's actor: load, apply, check, save, publish.
// A refused action or a failed save leaves the stored game untouched.
func (c *Coordinator) mutate(ctx context.Context, gameID, userID, action string, apply func(*domain.Game) ([]Event, error)) (GameView, error) {
	return submit(c, ctx, gameID, func(ctx context.Context) (GameView, error) {
		ctx, span := c.tracer.Start(ctx, "bluff."+action, trace.WithAttributes(
			attribute.String("game_id", gameID),
			attribute.String("user_id", userID),
		))
		defer span.End()

		g, err := c.load(ctx, gameID)
		if err != nil {
			if errors.Is(err, domain.ErrGameNotFound) {
				return GameView{}, err
			}
			return GameView{}, c.fail(ctx, span, action, gameID, userID, err)
		}

		events, err := apply(g)
		if err != nil {
			span.SetAttributes(attribute.String("refused", string(domain.CodeOf(err))))
			c.logger.DebugContext(ctx, "action refused", "game_id", gameID, "user_id", userID, "action", action, "error", err)
			return GameView{}, err
		}
		if len(events) == 0 {
			return NewGameView(g), nil
		}

		if len(g.Players) == 0 {
			if err := c.store.DeleteGame(ctx, gameID); err != nil {
				return GameView{}, c.fail(ctx, span, action, gameID, userID, fmt.Errorf("delete game: %w", err))
			}
		} else {
			if err := g.CheckInvariants(); err != nil {
				return GameView{}, c.fail(ctx, span, action, gameID, userID, err)
			}
			if err := c.store.SaveGame(ctx, g); err != nil {
				return GameView{}, c.fail(ctx, span, action, gameID, userID, fmt.Errorf("save game: %w", err))
			}
		}

		c.logger.InfoContext(ctx, "action applied", "game_id", gameID, "user_id", userID, "action", action, "state", g.State)
		c.publish(ctx, gameID, events)
		return NewGameView(g), nil
	})
}

func (c *Coordinator) publish(ctx context.Context, gameID string, events []Event) {
	if c.bus == nil {
		return
	}
	envs := make([]ports.Envelope, 0, len(events))
	for _, ev := range events {
		envs = append(envs, ports.Envelope{Type: string(ev.Kind), Data: ev.Payload})
	}
	if err := c.bus.Publish(ctx, gameID, envs...); err != nil {
		c.logger.WarnContext(ctx, "broadcast failed", "game_id", gameID, "error", err)
	}
}

func (c *Coordinator) fail(ctx context.Context, span trace.Span, action, gameID, userID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.ErrorContext(ctx, "action failed", "game_id", gameID, "user_id", userID, "action", action, "error", err)
	return err
}
