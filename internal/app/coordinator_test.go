package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"bluff/internal/domain"
	"bluff/internal/ports"
	"bluff/internal/ports/memory"
)

// recordingBus captures published envelopes in order.
type recordingBus struct {
	mu   sync.Mutex
	envs []ports.Envelope
	err  error
}

func (b *recordingBus) Publish(_ context.Context, _ string, envelopes ...ports.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envs = append(b.envs, envelopes...)
	return b.err
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.envs))
	for i, e := range b.envs {
		out[i] = e.Type
	}
	return out
}

// conflictStore fails the next save as if another process had committed first.
type conflictStore struct {
	*memory.Store
	mu       sync.Mutex
	failNext bool
}

func (s *conflictStore) SaveGame(ctx context.Context, g *domain.Game) error {
	s.mu.Lock()
	fail := s.failNext
	s.failNext = false
	s.mu.Unlock()
	if fail {
		return ports.ErrConflict
	}
	return s.Store.SaveGame(ctx, g)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(store ports.GameStore, bus ports.Broadcaster, seed int64) *Coordinator {
	n := 0
	var mu sync.Mutex
	return NewCoordinator(store,
		WithLogger(quietLogger()),
		WithBroadcaster(bus),
		WithService(NewService(rand.New(rand.NewSource(seed)), DefaultRules())),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("game-%d", n)
		}),
	)
}

func setupStartedGame(t *testing.T, c *Coordinator, players ...string) string {
	t.Helper()
	ctx := context.Background()
	view, err := c.CreateGame(ctx, players[0], "table", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range players[1:] {
		if _, err := c.JoinGame(ctx, view.ID, p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	if _, err := c.StartGame(ctx, view.ID, players[0]); err != nil {
		t.Fatalf("start: %v", err)
	}
	return view.ID
}

func TestCoordinatorLobbyFlow(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	c := newTestCoordinator(memory.NewStore(), bus, 1)
	defer c.Close()

	view, err := c.CreateGame(ctx, "alice", "friday", 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.JoinGame(ctx, view.ID, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := c.JoinGame(ctx, view.ID, "bob"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if _, err := c.JoinGame(ctx, view.ID, "carol"); err != nil {
		t.Fatalf("join carol: %v", err)
	}
	if _, err := c.JoinGame(ctx, view.ID, "dave"); !errors.Is(err, domain.ErrGameFull) {
		t.Fatalf("join dave err = %v, want full", err)
	}

	lobby, err := c.ListWaitingGames(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lobby) != 1 || lobby[0].PlayerCount != 3 {
		t.Fatalf("lobby = %+v", lobby)
	}

	if _, err := c.StartGame(ctx, view.ID, "bob"); !errors.Is(err, domain.ErrNotCreator) {
		t.Fatalf("start by bob err = %v", err)
	}
	if _, err := c.StartGame(ctx, view.ID, "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	lobby, _ = c.ListWaitingGames(ctx, 10)
	if len(lobby) != 0 {
		t.Fatalf("started game still listed")
	}

	got := bus.types()
	if len(got) != 3 {
		t.Fatalf("published %v, want three gameUpdate", got)
	}
}

func TestCoordinatorLeaveDeletesEmptyGame(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	store := memory.NewStore()
	c := newTestCoordinator(store, bus, 1)
	defer c.Close()

	view, _ := c.CreateGame(ctx, "alice", "solo", 0)
	if _, err := c.LeaveGame(ctx, view.ID, "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := store.GetGame(ctx, view.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("game still stored: %v", err)
	}
	if got := bus.types(); len(got) != 1 || got[0] != string(EventGameClosed) {
		t.Fatalf("published %v", got)
	}
	if _, err := c.State(ctx, view.ID, "alice"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("state err = %v, want not found", err)
	}
}

func TestCoordinatorWinPublishesInOrder(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	store := memory.NewStore()
	c := newTestCoordinator(store, bus, 2)
	defer c.Close()

	id := setupStartedGame(t, c, "a", "b")
	g, _ := store.GetGame(ctx, id)
	pa, _ := g.Player("a")
	pb, _ := g.Player("b")
	pb.Hand = append(pb.Hand, pa.Hand[1:]...)
	pa.Hand = pa.Hand[:1]
	if err := store.SaveGame(ctx, g); err != nil {
		t.Fatalf("rig hands: %v", err)
	}

	bus.mu.Lock()
	bus.envs = nil
	bus.mu.Unlock()

	view, err := c.PlayCards(ctx, id, "a", []string{string(pa.Hand[0])}, "K")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if view.State != domain.StateFinished || view.Winner != "a" {
		t.Fatalf("view = %+v", view)
	}
	got := bus.types()
	want := []string{"gameUpdate", "playerAction", "gameEnded"}
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("published %v, want %v", got, want)
		}
	}

	if _, err := c.Challenge(ctx, id, "b"); !errors.Is(err, domain.ErrGameAlreadyFinished) {
		t.Fatalf("challenge after win err = %v", err)
	}
}

func TestCoordinatorConflictLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	store := &conflictStore{Store: memory.NewStore()}
	c := newTestCoordinator(store, bus, 3)
	defer c.Close()

	id := setupStartedGame(t, c, "a", "b")
	before, _ := store.GetGame(ctx, id)
	published := len(bus.types())

	pa, _ := before.Player("a")
	store.mu.Lock()
	store.failNext = true
	store.mu.Unlock()

	_, err := c.PlayCards(ctx, id, "a", []string{string(pa.Hand[0])}, "A")
	if !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if Describe(err).Code != domain.CodeInternal {
		t.Fatalf("reply = %+v", Describe(err))
	}
	after, _ := store.GetGame(ctx, id)
	if after.Version != before.Version || len(after.Pile) != 0 {
		t.Fatalf("state changed after failed save")
	}
	if len(bus.types()) != published {
		t.Fatalf("published after failed save")
	}

	// A retry by the client succeeds.
	if _, err := c.PlayCards(ctx, id, "a", []string{string(pa.Hand[0])}, "A"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestCoordinatorPublishFailureDoesNotFailAction(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{err: errors.New("socket gone")}
	c := newTestCoordinator(memory.NewStore(), bus, 4)
	defer c.Close()

	view, err := c.CreateGame(ctx, "a", "t", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.JoinGame(ctx, view.ID, "b"); err != nil {
		t.Fatalf("join with failing bus: %v", err)
	}
}

func TestCoordinatorConcurrentPlaysCommitOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newTestCoordinator(store, &recordingBus{}, 5)
	defer c.Close()

	id := setupStartedGame(t, c, "a", "b", "c", "d")
	g, _ := store.GetGame(ctx, id)
	pa, _ := g.Player("a")
	hand := append([]domain.Card(nil), pa.Hand...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, refused := 0, 0
	for _, card := range hand {
		wg.Add(1)
		go func(card domain.Card) {
			defer wg.Done()
			_, err := c.PlayCards(ctx, id, "a", []string{string(card)}, "A")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrNotYourTurn):
				refused++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}(card)
	}
	wg.Wait()

	if ok != 1 || refused != len(hand)-1 {
		t.Fatalf("ok=%d refused=%d, want 1 and %d", ok, refused, len(hand)-1)
	}
	final, _ := store.GetGame(ctx, id)
	if err := final.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if len(final.Pile) != 1 || final.CurrentTurn != "b" {
		t.Fatalf("pile=%d turn=%s", len(final.Pile), final.CurrentTurn)
	}
}

func TestCoordinatorConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newTestCoordinator(store, nil, 6)
	defer c.Close()

	view, _ := c.CreateGame(ctx, "host", "rush", 4)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.JoinGame(ctx, view.ID, fmt.Sprintf("u%d", i))
		}(i)
	}
	wg.Wait()

	g, _ := store.GetGame(ctx, view.ID)
	if len(g.Players) != 4 {
		t.Fatalf("players = %d, want 4", len(g.Players))
	}
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestCoordinatorIdleActorsRetire(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(memory.NewStore(), WithLogger(quietLogger()), WithIdleTimeout(10*time.Millisecond))
	defer c.Close()

	view, _ := c.CreateGame(ctx, "a", "t", 0)
	if _, err := c.JoinGame(ctx, view.ID, "b"); err != nil {
		t.Fatalf("join: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.ActiveGames() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("actor did not retire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := c.JoinGame(ctx, view.ID, "c"); err != nil {
		t.Fatalf("join after retire: %v", err)
	}
}

func TestCoordinatorClosedRejectsActions(t *testing.T) {
	c := NewCoordinator(memory.NewStore(), WithLogger(quietLogger()))
	view, _ := c.CreateGame(context.Background(), "a", "t", 0)
	c.Close()
	if _, err := c.JoinGame(context.Background(), view.ID, "b"); !errors.Is(err, ErrCoordinatorClosed) {
		t.Fatalf("err = %v, want closed", err)
	}
}

func TestCoordinatorStateView(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(memory.NewStore(), nil, 7)
	defer c.Close()
	id := setupStartedGame(t, c, "a", "b", "c")

	st, err := c.State(ctx, id, "b")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(st.PlayerHand) != 17 || st.Game.CurrentTurn != "a" || len(st.Players) != 3 {
		t.Fatalf("state = %+v", st)
	}
}
