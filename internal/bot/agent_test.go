package bot

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"bluff/internal/app"
	"bluff/internal/domain"
	"bluff/internal/ports/memory"
)

// countingBrain never challenges and counts how often it was asked.
type countingBrain struct{ asked int }

func (b *countingBrain) ShouldChallenge(Table, *rand.Rand) bool {
	b.asked++
	return false
}

func (b *countingBrain) ChoosePlay(t Table, _ *rand.Rand) Move {
	return Move{Cards: t.Hand[:1], DeclaredRank: t.Hand[0].Rank()}
}

func playingState(turn, lastBy string, hand ...string) app.StateView {
	return app.StateView{
		Game: app.GameView{
			State:           domain.StatePlaying,
			CurrentTurn:     turn,
			CurrentRank:     domain.RankFive,
			LastPlayedBy:    lastBy,
			LastPlayedCount: 1,
			PileSize:        1,
		},
		Players: []app.PlayerView{
			{UserID: "bot-a", CardCount: len(hand)},
			{UserID: "bob", CardCount: 10},
		},
		PlayerHand: cards(hand...),
	}
}

func TestAgentWeighsEachPlayOnce(t *testing.T) {
	strategy := &countingBrain{}
	a, err := NewAgent(BotIdentity{UserID: "bot-a", Level: LevelHonest}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	a.Strategy = strategy

	state := playingState("bob", "bob", "3H")
	for i := 0; i < 3; i++ {
		if _, ok := a.Act(state); ok {
			t.Fatalf("agent acted out of turn")
		}
	}
	if strategy.asked != 1 {
		t.Fatalf("asked %d times, want 1", strategy.asked)
	}

	mine := playingState("bot-a", "bob", "3H", "4S")
	mine.Game.PileSize = 2
	move, ok := a.Act(mine)
	if !ok || move.Challenge || len(move.Cards) != 1 {
		t.Fatalf("move = %+v, %v", move, ok)
	}
	if strategy.asked != 2 {
		t.Fatalf("new play not weighed: asked %d", strategy.asked)
	}
}

func TestAgentIgnoresWaitingGame(t *testing.T) {
	a, err := NewAgent(BotIdentity{UserID: "bot-a", Level: LevelSkeptic}, nil)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	if _, ok := a.Act(app.StateView{Game: app.GameView{State: domain.StateWaiting}}); ok {
		t.Fatal("agent acted in a waiting game")
	}
}

func TestIdentities(t *testing.T) {
	ids := DefaultIdentities()
	seen := map[string]bool{}
	for i := range ids {
		id := ids.Get(i)
		if !IsBot(id.UserID) || seen[id.UserID] {
			t.Fatalf("identity %d = %+v", i, id)
		}
		seen[id.UserID] = true
	}
	if got := Identities(nil).Get(3).UserID; got != "bot-3" {
		t.Fatalf("fallback id = %s, want bot-3", got)
	}

	if got := ids.Find(IDPrefix + "cleo"); got.Level != LevelSkeptic {
		t.Fatalf("Find(bot-cleo) = %+v, want skeptic", got)
	}
	if got := ids.Find(IDPrefix + "zed"); got.UserID != "bot-zed" || got.Level != LevelHonest {
		t.Fatalf("Find(bot-zed) = %+v, want honest fallback", got)
	}

	path := filepath.Join(t.TempDir(), "bots.json")
	if err := os.WriteFile(path, []byte(`[{"user_id":"zed","display_name":"Zed","level":"skeptic"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadIdentities(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded[0].UserID != "bot-zed" {
		t.Fatalf("loaded id = %s, want bot-zed", loaded[0].UserID)
	}

	if err := os.WriteFile(path, []byte(`[{"user_id":"zed","level":"god"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadIdentities(path); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestRosterPlaysFullGame(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roster := NewRoster(logger)
	store := memory.NewStore()
	coord := app.NewCoordinator(store,
		app.WithLogger(logger),
		app.WithBroadcaster(roster),
		app.WithService(app.NewService(rand.New(rand.NewSource(11)), app.DefaultRules())),
	)
	defer coord.Close()

	ids := DefaultIdentities()
	creator := ids.Get(0)
	g, err := coord.CreateGame(ctx, creator.UserID, "bots", 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		id := ids.Get(i)
		if i > 0 {
			if _, err := coord.JoinGame(ctx, g.ID, id.UserID); err != nil {
				t.Fatalf("join %s: %v", id.UserID, err)
			}
		}
		agent, err := NewAgent(id, rand.New(rand.NewSource(int64(i))))
		if err != nil {
			t.Fatalf("agent: %v", err)
		}
		roster.Seat(g.ID, agent)
	}
	if _, err := coord.StartGame(ctx, g.ID, creator.UserID); err != nil {
		t.Fatalf("start: %v", err)
	}

	for step := 0; step < 20000; step++ {
		acted, err := roster.Step(ctx, coord, g.ID)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		stored, err := store.GetGame(ctx, g.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if err := stored.CheckInvariants(); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if stored.State == domain.StateFinished {
			if stored.Winner == "" {
				t.Fatal("finished without a winner")
			}
			return
		}
		if !acted {
			t.Fatalf("step %d: no bot could act in a playing game", step)
		}
	}
	t.Fatal("game did not finish")
}
