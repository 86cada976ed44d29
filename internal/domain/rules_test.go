package domain

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

func waitingGame(players ...string) *Game {
	g := &Game{ID: "g1", Name: "table", State: StateWaiting, MaxPlayers: 4}
	if len(players) > 0 {
		g.CreatedBy = players[0]
	}
	now := time.Unix(1700000000, 0)
	for _, p := range players {
		if _, err := Join(g, p, now); err != nil {
			panic(err)
		}
	}
	return g
}

// playingGame builds a game mid-play with fixed hands and an optional pending claim.
func playingGame(hands map[string][]Card, order []string) *Game {
	g := &Game{ID: "g1", State: StatePlaying, MaxPlayers: 4, CreatedBy: order[0], CurrentTurn: order[0]}
	for i, id := range order {
		g.Players = append(g.Players, &Player{UserID: id, Position: i, Hand: append([]Card(nil), hands[id]...)})
	}
	return g
}

func TestStartFourPlayers(t *testing.T) {
	g := waitingGame("p1", "p2", "p3", "p4")
	if err := Start(g, "p1", 2, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if g.State != StatePlaying {
		t.Fatalf("state = %s, want playing", g.State)
	}
	if g.CurrentTurn != "p1" {
		t.Fatalf("current turn = %s, want p1", g.CurrentTurn)
	}
	for _, p := range g.Players {
		if len(p.Hand) != 13 {
			t.Fatalf("%s hand = %d, want 13", p.UserID, len(p.Hand))
		}
	}
	if len(g.Pile) != 0 || g.CurrentRank != "" || g.LastPlayedCount != 0 {
		t.Fatalf("pile=%v rank=%q last=%d, want empty", g.Pile, g.CurrentRank, g.LastPlayedCount)
	}
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestStartPreconditions(t *testing.T) {
	tests := []struct {
		name  string
		game  func() *Game
		actor string
		want  error
	}{
		{name: "not creator", game: func() *Game { return waitingGame("p1", "p2") }, actor: "p2", want: ErrNotCreator},
		{name: "too few", game: func() *Game { return waitingGame("p1") }, actor: "p1", want: ErrNotEnoughPlayers},
		{name: "already playing", game: func() *Game {
			g := waitingGame("p1", "p2")
			_ = Start(g, "p1", 2, rand.New(rand.NewSource(1)))
			return g
		}, actor: "p1", want: ErrGameNotWaiting},
		{name: "finished", game: func() *Game {
			g := waitingGame("p1", "p2")
			g.State = StateFinished
			return g
		}, actor: "p1", want: ErrGameAlreadyFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Start(tt.game(), tt.actor, 2, rand.New(rand.NewSource(1)))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStartHonoursConfiguredMinimum(t *testing.T) {
	g := waitingGame("p1", "p2")
	if err := Start(g, "p1", 3, rand.New(rand.NewSource(1))); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("err = %v, want %v", err, ErrNotEnoughPlayers)
	}
}

func TestJoinAndLeave(t *testing.T) {
	g := waitingGame("p1", "p2", "p3")
	joined, err := Join(g, "p2", time.Now())
	if err != nil || joined {
		t.Fatalf("rejoin = %v, %v, want false, nil", joined, err)
	}
	if _, err := Join(g, "p4", time.Now()); err != nil {
		t.Fatalf("join p4: %v", err)
	}
	if _, err := Join(g, "p5", time.Now()); !errors.Is(err, ErrGameFull) {
		t.Fatalf("join p5 err = %v, want %v", err, ErrGameFull)
	}

	if err := Leave(g, "p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if g.CreatedBy != "p2" {
		t.Fatalf("creator = %s, want p2", g.CreatedBy)
	}
	for i, p := range g.Players {
		if p.Position != i {
			t.Fatalf("%s position = %d, want %d", p.UserID, p.Position, i)
		}
	}
	if err := Leave(g, "p1"); !errors.Is(err, ErrNotSeated) {
		t.Fatalf("leave twice err = %v, want %v", err, ErrNotSeated)
	}

	_ = Start(g, "p2", 2, rand.New(rand.NewSource(3)))
	if _, err := Join(g, "p9", time.Now()); !errors.Is(err, ErrGameNotWaiting) {
		t.Fatalf("join started err = %v, want %v", err, ErrGameNotWaiting)
	}
	if err := Leave(g, "p2"); !errors.Is(err, ErrGameNotWaiting) {
		t.Fatalf("leave started err = %v, want %v", err, ErrGameNotWaiting)
	}
}

func TestPlayCardsAdvancesTurnWithWrap(t *testing.T) {
	g := playingGame(map[string][]Card{
		"p1": {"AH", "2H"},
		"p2": {"AD", "2D"},
		"p3": {"AC", "2C"},
	}, []string{"p1", "p2", "p3"})

	steps := []struct {
		actor string
		card  Card
		next  string
	}{
		{"p1", "AH", "p2"},
		{"p2", "AD", "p3"},
		{"p3", "AC", "p1"},
	}
	for _, s := range steps {
		res, err := PlayCards(g, s.actor, []Card{s.card}, "A", RankPolicyAny)
		if err != nil {
			t.Fatalf("%s play: %v", s.actor, err)
		}
		if g.CurrentTurn != s.next || res.NextTurn != s.next {
			t.Fatalf("after %s turn = %s, want %s", s.actor, g.CurrentTurn, s.next)
		}
	}
	if len(g.Pile) != 3 || g.LastPlayedBy != "p3" || g.LastPlayedCount != 1 {
		t.Fatalf("pile=%v last=%s/%d", g.Pile, g.LastPlayedBy, g.LastPlayedCount)
	}
}

func TestPlayCardsRejectionsLeaveStateUntouched(t *testing.T) {
	base := playingGame(map[string][]Card{
		"p1": {"QH", "3D"},
		"p2": {"KS", "4C"},
	}, []string{"p1", "p2"})

	tests := []struct {
		name     string
		actor    string
		cards    []Card
		declared string
		policy   RankPolicy
		prep     func(*Game)
		want     error
	}{
		{name: "wrong turn", actor: "p2", cards: []Card{"KS"}, declared: "K", want: ErrNotYourTurn},
		{name: "outsider", actor: "zz", cards: []Card{"KS"}, declared: "K", want: ErrNotYourTurn},
		{name: "card not held", actor: "p1", cards: []Card{"KS"}, declared: "K", want: ErrInvalidCards},
		{name: "no cards", actor: "p1", declared: "K", want: ErrInvalidCards},
		{name: "bogus token", actor: "p1", cards: []Card{"ZZ"}, declared: "K", want: ErrInvalidCards},
		{name: "duplicate card", actor: "p1", cards: []Card{"QH", "QH"}, declared: "Q", want: ErrInvalidCards},
		{name: "bad rank", actor: "p1", cards: []Card{"QH"}, declared: "Joker", want: ErrInvalidRank},
		{name: "ladder", actor: "p1", cards: []Card{"QH"}, declared: "Q", policy: RankPolicyLadder,
			prep: func(g *Game) { g.CurrentRank = RankFive }, want: ErrRankNotAllowed},
		{name: "not started", actor: "p1", cards: []Card{"QH"}, declared: "Q",
			prep: func(g *Game) { g.State = StateWaiting }, want: ErrNotYourTurn},
		{name: "finished", actor: "p1", cards: []Card{"QH"}, declared: "Q",
			prep: func(g *Game) { g.State = StateFinished }, want: ErrGameAlreadyFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base.Clone()
			if tt.prep != nil {
				tt.prep(g)
			}
			before := g.Clone()
			policy := tt.policy
			if policy == "" {
				policy = RankPolicyAny
			}
			_, err := PlayCards(g, tt.actor, tt.cards, tt.declared, policy)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !reflect.DeepEqual(g, before) {
				t.Fatalf("state changed after rejected play")
			}
		})
	}
}

func TestPlayCardsLadderAccepts(t *testing.T) {
	g := playingGame(map[string][]Card{"p1": {"KH", "3D"}, "p2": {"4C"}}, []string{"p1", "p2"})
	g.CurrentRank = RankAce
	if _, err := PlayCards(g, "p1", []Card{"KH"}, "king", RankPolicyLadder); err != nil {
		t.Fatalf("ladder K after A: %v", err)
	}
	if g.CurrentRank != RankKing {
		t.Fatalf("current rank = %s, want K", g.CurrentRank)
	}
}

func TestChallengeTruthfulPlay(t *testing.T) {
	g := playingGame(map[string][]Card{
		"A": {"QH", "QS", "3D"},
		"B": {"5C"},
		"C": {"7H"},
	}, []string{"A", "B", "C"})
	g.Pile = []Card{"9D", "9C"}

	if _, err := PlayCards(g, "A", []Card{"QH", "QS"}, "Q", RankPolicyAny); err != nil {
		t.Fatalf("play: %v", err)
	}
	res, err := Challenge(g, "B")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if res.Liar {
		t.Fatalf("liar = true, want false")
	}
	if res.RecipientID != "B" || res.ChallengedID != "A" || res.DeclaredRank != RankQueen {
		t.Fatalf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.Revealed, []Card{"QH", "QS"}) {
		t.Fatalf("revealed = %v", res.Revealed)
	}
	b, _ := g.Player("B")
	if len(b.Hand) != 5 {
		t.Fatalf("B hand = %v, want 5 cards", b.Hand)
	}
	if len(g.Pile) != 0 || g.CurrentRank != "" || g.LastPlayedCount != 0 || g.LastPlayedBy != "" {
		t.Fatalf("pile not cleared: %+v", g)
	}
	if g.CurrentTurn != "B" {
		t.Fatalf("turn = %s, want B", g.CurrentTurn)
	}
}

func TestChallengeLie(t *testing.T) {
	g := playingGame(map[string][]Card{
		"A": {"QH", "7S", "3D"},
		"B": {"5C"},
		"C": {"7H"},
	}, []string{"A", "B", "C"})

	if _, err := PlayCards(g, "A", []Card{"QH", "7S"}, "q", RankPolicyAny); err != nil {
		t.Fatalf("play: %v", err)
	}
	res, err := Challenge(g, "C")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if !res.Liar || res.RecipientID != "A" {
		t.Fatalf("liar=%v recipient=%s, want true A", res.Liar, res.RecipientID)
	}
	a, _ := g.Player("A")
	if len(a.Hand) != 3 {
		t.Fatalf("A hand = %v, want 3 cards", a.Hand)
	}
	if g.CurrentTurn != "A" {
		t.Fatalf("turn = %s, want A", g.CurrentTurn)
	}
}

func TestChallengePreconditions(t *testing.T) {
	fresh := func() *Game {
		return playingGame(map[string][]Card{"A": {"QH", "3D"}, "B": {"5C"}}, []string{"A", "B"})
	}
	withPlay := func() *Game {
		g := fresh()
		if _, err := PlayCards(g, "A", []Card{"QH"}, "Q", RankPolicyAny); err != nil {
			panic(err)
		}
		return g
	}
	tests := []struct {
		name       string
		game       *Game
		challenger string
		want       error
	}{
		{name: "nothing played", game: fresh(), challenger: "B", want: ErrNothingToChallenge},
		{name: "self", game: withPlay(), challenger: "A", want: ErrCannotChallengeSelf},
		{name: "outsider", game: withPlay(), challenger: "Z", want: ErrNotSeated},
		{name: "waiting", game: waitingGame("A", "B"), challenger: "B", want: ErrGameNotPlaying},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.game.Clone()
			_, err := Challenge(tt.game, tt.challenger)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !reflect.DeepEqual(tt.game, before) {
				t.Fatalf("state changed after rejected challenge")
			}
		})
	}
}

func TestWinEndsGame(t *testing.T) {
	g := playingGame(map[string][]Card{"A": {"QH"}, "B": {"5C", "6C"}}, []string{"A", "B"})
	res, err := PlayCards(g, "A", []Card{"QH"}, "Q", RankPolicyAny)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Winner != "A" || g.State != StateFinished || g.Winner != "A" || g.CurrentTurn != "" {
		t.Fatalf("winner=%s state=%s turn=%q", res.Winner, g.State, g.CurrentTurn)
	}
	if _, err := PlayCards(g, "B", []Card{"5C"}, "5", RankPolicyAny); !errors.Is(err, ErrGameAlreadyFinished) {
		t.Fatalf("play after finish err = %v", err)
	}
	if _, err := Challenge(g, "B"); !errors.Is(err, ErrGameAlreadyFinished) {
		t.Fatalf("challenge after finish err = %v", err)
	}
}

// TestScriptedGameConservesCards plays random games to completion and checks
// the invariants after every accepted action.
func TestScriptedGameConservesCards(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		g := waitingGame("p1", "p2", "p3", "p4")
		if err := Start(g, "p1", 2, rng); err != nil {
			t.Fatalf("seed %d start: %v", seed, err)
		}
		for step := 0; step < 5000 && g.State == StatePlaying; step++ {
			actor := g.CurrentTurn
			if g.HasPendingPlay() && rng.Intn(3) == 0 {
				challenger := g.SeatOrder()[rng.Intn(len(g.Players))]
				if challenger == g.LastPlayedBy {
					continue
				}
				if _, err := Challenge(g, challenger); err != nil {
					t.Fatalf("seed %d challenge: %v", seed, err)
				}
			} else {
				p, _ := g.Player(actor)
				n := 1 + rng.Intn(min(3, len(p.Hand)))
				cards := append([]Card(nil), p.Hand[:n]...)
				declared := Ranks[rng.Intn(len(Ranks))]
				if _, err := PlayCards(g, actor, cards, string(declared), RankPolicyAny); err != nil {
					t.Fatalf("seed %d play: %v", seed, err)
				}
			}
			if err := g.CheckInvariants(); err != nil {
				t.Fatalf("seed %d step %d: %v", seed, step, err)
			}
		}
	}
}

func TestCheckInvariantsDetectsCorruption(t *testing.T) {
	g := waitingGame("p1", "p2")
	if err := Start(g, "p1", 2, rand.New(rand.NewSource(5))); err != nil {
		t.Fatalf("start: %v", err)
	}
	g.Players[0].Hand = append(g.Players[0].Hand, g.Players[1].Hand[0])
	if err := g.CheckInvariants(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("duplicate card err = %v, want invariant", err)
	}

	g2 := waitingGame("p1", "p2")
	_ = Start(g2, "p1", 2, rand.New(rand.NewSource(5)))
	g2.Players[0].Hand = g2.Players[0].Hand[1:]
	if err := g2.CheckInvariants(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("lost card err = %v, want invariant", err)
	}
}
