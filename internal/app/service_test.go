package app

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"bluff/internal/domain"
)

func startedGame(t *testing.T, svc *Service, players ...string) *domain.Game {
	t.Helper()
	now := time.Unix(1700000000, 0)
	g, err := svc.NewGame("g1", players[0], "table", 0, now)
	if err != nil {
		t.Fatalf("new game error: %v", err)
	}
	for _, p := range players[1:] {
		if _, err := svc.JoinGame(g, p, now); err != nil {
			t.Fatalf("join %s error: %v", p, err)
		}
	}
	if _, err := svc.StartGame(g, players[0]); err != nil {
		t.Fatalf("start game error: %v", err)
	}
	return g
}

func TestNewGameValidation(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(1)), DefaultRules())
	tests := []struct {
		name       string
		gameName   string
		maxPlayers int
		wantErr    bool
		wantMax    int
	}{
		{name: "default size", gameName: "friday", wantMax: DefaultMaxPlayers},
		{name: "explicit size", gameName: "big", maxPlayers: 6, wantMax: 6},
		{name: "blank name", gameName: "   ", wantErr: true},
		{name: "too small", gameName: "x", maxPlayers: 1, wantErr: true},
		{name: "too large", gameName: "x", maxPlayers: 99, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := svc.NewGame("id", "u1", tt.gameName, tt.maxPlayers, time.Now())
			if tt.wantErr {
				if domain.CodeOf(err) != domain.CodeInvalidArgument {
					t.Fatalf("err = %v, want invalid argument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("new game error: %v", err)
			}
			if g.MaxPlayers != tt.wantMax {
				t.Fatalf("max players = %d, want %d", g.MaxPlayers, tt.wantMax)
			}
			if len(g.Players) != 1 || g.Players[0].UserID != "u1" || g.CreatedBy != "u1" {
				t.Fatalf("creator not seated: %+v", g.Players)
			}
		})
	}
}

func TestStartGameDealsHands(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(42)), DefaultRules())
	g := startedGame(t, svc, "u1", "u2")
	if g.State != domain.StatePlaying {
		t.Fatalf("state = %s, want playing", g.State)
	}
	for _, p := range g.Players {
		if len(p.Hand) != 26 {
			t.Fatalf("hand size = %d, want 26", len(p.Hand))
		}
	}
}

func TestPlayCardsEmitsUpdateThenAction(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(99)), DefaultRules())
	g := startedGame(t, svc, "u1", "u2")
	p1, _ := g.Player("u1")
	card := p1.Hand[0]

	evs, err := svc.PlayCards(g, "u1", []string{string(card)}, "ace")
	if err != nil {
		t.Fatalf("play cards error: %v", err)
	}
	if len(evs) != 2 || evs[0].Kind != EventGameUpdate || evs[1].Kind != EventPlayerAction {
		t.Fatalf("events = %+v", evs)
	}
	action := evs[1].Payload.(PlayCardsPayload)
	if action.Type != ActionPlayCards || action.CardCount != 1 || action.DeclaredRank != domain.RankAce || action.UserID != "u1" {
		t.Fatalf("action = %+v", action)
	}
	view := evs[0].Payload.(GameView)
	if view.PileSize != 1 || view.CurrentTurn != "u2" {
		t.Fatalf("view = %+v", view)
	}
}

func TestPlayCardsAcceptsLowercaseTokens(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(5)), DefaultRules())
	g := startedGame(t, svc, "u1", "u2")
	p1, _ := g.Player("u1")
	token := string(p1.Hand[0])
	lower := []byte(token)
	for i := range lower {
		if lower[i] >= 'A' && lower[i] <= 'Z' {
			lower[i] += 'a' - 'A'
		}
	}
	if _, err := svc.PlayCards(g, "u1", []string{string(lower)}, "K"); err != nil {
		t.Fatalf("play %s error: %v", lower, err)
	}
}

func TestPlayCardsAndEnd(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(99)), DefaultRules())
	g := startedGame(t, svc, "u1", "u2")

	// Force a one-card hand for a predictable end.
	p1, _ := g.Player("u1")
	p2, _ := g.Player("u2")
	p2.Hand = append(p2.Hand, p1.Hand[1:]...)
	p1.Hand = p1.Hand[:1]

	evs, err := svc.PlayCards(g, "u1", []string{string(p1.Hand[0])}, "Q")
	if err != nil {
		t.Fatalf("play cards error: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("events = %d, want 3", len(evs))
	}
	kinds := []EventKind{evs[0].Kind, evs[1].Kind, evs[2].Kind}
	want := []EventKind{EventGameUpdate, EventPlayerAction, EventGameEnded}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event order = %v, want %v", kinds, want)
		}
	}
	if evs[2].Payload.(GameEndedPayload).WinnerID != "u1" {
		t.Fatalf("winner = %+v", evs[2].Payload)
	}
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestChallengeEmitsResult(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(3)), DefaultRules())
	g := startedGame(t, svc, "u1", "u2", "u3")
	p1, _ := g.Player("u1")
	card := p1.Hand[0]
	honest := string(card.Rank())

	if _, err := svc.PlayCards(g, "u1", []string{string(card)}, honest); err != nil {
		t.Fatalf("play error: %v", err)
	}
	evs, err := svc.Challenge(g, "u3")
	if err != nil {
		t.Fatalf("challenge error: %v", err)
	}
	res := evs[1].Payload.(ChallengeResultPayload)
	if res.Liar || res.RecipientID != "u3" || res.ChallengedID != "u1" || len(res.Revealed) != 1 || res.Revealed[0] != card {
		t.Fatalf("result = %+v", res)
	}
	if res.Type != ActionChallengeResult {
		t.Fatalf("type = %s", res.Type)
	}
}

func TestLeaveLastPlayerClosesGame(t *testing.T) {
	svc := NewService(nil, DefaultRules())
	g, _ := svc.NewGame("g1", "u1", "solo", 0, time.Now())
	evs, err := svc.LeaveGame(g, "u1")
	if err != nil {
		t.Fatalf("leave error: %v", err)
	}
	if len(evs) != 1 || evs[0].Kind != EventGameClosed {
		t.Fatalf("events = %+v", evs)
	}
}

func TestLadderRulesRejectFarRank(t *testing.T) {
	rules := DefaultRules()
	rules.RankPolicy = domain.RankPolicyLadder
	svc := NewService(rand.New(rand.NewSource(8)), rules)
	g := startedGame(t, svc, "u1", "u2")
	p1, _ := g.Player("u1")
	if _, err := svc.PlayCards(g, "u1", []string{string(p1.Hand[0])}, "5"); err != nil {
		t.Fatalf("first play error: %v", err)
	}
	p2, _ := g.Player("u2")
	_, err := svc.PlayCards(g, "u2", []string{string(p2.Hand[0])}, "9")
	if !errors.Is(err, domain.ErrRankNotAllowed) {
		t.Fatalf("err = %v, want %v", err, domain.ErrRankNotAllowed)
	}
}

func TestStateViewHidesOtherHands(t *testing.T) {
	svc := NewService(rand.New(rand.NewSource(11)), DefaultRules())
	g := startedGame(t, svc, "u1", "u2")
	view := NewStateView(g, "u2")
	if view.CurrentUserID != "u2" || len(view.PlayerHand) != 26 {
		t.Fatalf("view = %+v", view)
	}
	for _, p := range view.Players {
		if p.CardCount != 26 {
			t.Fatalf("card count = %d, want 26", p.CardCount)
		}
	}
	outsider := NewStateView(g, "nobody")
	if len(outsider.PlayerHand) != 0 {
		t.Fatalf("outsider hand = %v", outsider.PlayerHand)
	}
}

func TestRulesNormalized(t *testing.T) {
	r := Rules{MinPlayers: 5, DefaultMaxPlayers: 3, MaxPlayersLimit: 4}.normalized()
	if r.MinPlayers != 5 || r.MaxPlayersLimit < 5 || r.DefaultMaxPlayers < 5 || r.RankPolicy != domain.RankPolicyAny {
		t.Fatalf("normalized = %+v", r)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(domain.ErrNotYourTurn); got.Code != domain.CodeNotYourTurn {
		t.Fatalf("code = %s", got.Code)
	}
	if got := Describe(errors.New("disk on fire")); got.Code != domain.CodeInternal || got.Message != "internal error" {
		t.Fatalf("reply = %+v", got)
	}
	if IsRefusal(domain.ErrInvariant) {
		t.Fatalf("invariant violation treated as refusal")
	}
}
