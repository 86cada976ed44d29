package domain

import (
	"math/rand"
	"strings"
	"time"
)

// MinPlayers is the fewest seats a game can start with.
const MinPlayers = 2

// PlayResult describes an accepted play as other players may see it.
type PlayResult struct {
	UserID       string
	CardCount    int
	DeclaredRank Rank
	NextTurn     string
	Winner       string
}

// ChallengeResult is the outcome of a resolved challenge.
type ChallengeResult struct {
	Liar         bool
	ChallengerID string
	ChallengedID string
	DeclaredRank Rank
	Revealed     []Card
	RecipientID  string
	PileSize     int
	Winner       string
}

// Join seats userID at the next free position. Joining a game you already sit
// in is a no-op and reports false.
func Join(g *Game, userID string, now time.Time) (bool, error) {
	if _, ok := g.Player(userID); ok {
		return false, nil
	}
	switch g.State {
	case StateFinished:
		return false, ErrGameAlreadyFinished
	case StatePlaying:
		return false, ErrGameNotWaiting
	}
	if g.IsFull() {
		return false, ErrGameFull
	}
	g.Players = append(g.Players, &Player{
		UserID:   userID,
		Position: len(g.Players),
		JoinedAt: now,
	})
	return true, nil
}

// Leave removes userID from a waiting game and re-packs positions. If the
// creator leaves, the player now at position 0 becomes creator.
func Leave(g *Game, userID string) error {
	switch g.State {
	case StateFinished:
		return ErrGameAlreadyFinished
	case StatePlaying:
		return ErrGameNotWaiting
	}
	if _, ok := g.Player(userID); !ok {
		return ErrNotSeated
	}

	g.sortPlayers()
	kept := g.Players[:0]
	for _, p := range g.Players {
		if p.UserID == userID {
			continue
		}
		p.Position = len(kept)
		kept = append(kept, p)
	}
	g.Players = kept

	if g.CreatedBy == userID && len(g.Players) > 0 {
		g.CreatedBy = g.Players[0].UserID
	}
	return nil
}

// Start shuffles a fresh deck, deals it to every seat and hands the first turn
// to position 0.
func Start(g *Game, actor string, minPlayers int, rng *rand.Rand) error {
	switch g.State {
	case StateFinished:
		return ErrGameAlreadyFinished
	case StatePlaying:
		return ErrGameNotWaiting
	}
	if actor != g.CreatedBy {
		return ErrNotCreator
	}
	if minPlayers < MinPlayers {
		minPlayers = MinPlayers
	}
	if len(g.Players) < minPlayers {
		return ErrNotEnoughPlayers
	}

	deck := Shuffle(NewDeck(), rng)
	seats := g.SeatOrder()
	hands := DealAll(&deck, seats)
	for _, p := range g.Players {
		p.Hand = hands[p.UserID]
	}

	g.State = StatePlaying
	g.CurrentTurn = seats[0]
	g.CurrentRank = ""
	g.Pile = nil
	g.LastPlayedCount = 0
	g.LastPlayedBy = ""
	g.Winner = ""
	return nil
}

// PlayCards moves cards from the actor's hand to the pile under a declared
// rank and passes the turn on. All checks run before anything is mutated.
func PlayCards(g *Game, actor string, cards []Card, declared string, policy RankPolicy) (PlayResult, error) {
	if g.State == StateFinished {
		return PlayResult{}, ErrGameAlreadyFinished
	}
	if g.State != StatePlaying || g.CurrentTurn != actor {
		return PlayResult{}, ErrNotYourTurn
	}
	player, ok := g.Player(actor)
	if !ok {
		return PlayResult{}, ErrNotYourTurn
	}
	if len(cards) == 0 {
		return PlayResult{}, ErrInvalidCards
	}
	for _, c := range cards {
		if !c.Valid() {
			return PlayResult{}, ErrInvalidCards
		}
	}
	remaining, ok := RemoveCards(player.Hand, cards)
	if !ok {
		return PlayResult{}, ErrInvalidCards
	}
	rank, ok := ParseRank(declared)
	if !ok {
		return PlayResult{}, ErrInvalidRank
	}
	if policy == RankPolicyLadder && g.CurrentRank != "" && !rankAllowed(g.CurrentRank, rank) {
		return PlayResult{}, ErrRankNotAllowed
	}

	player.Hand = remaining
	g.Pile = append(g.Pile, cards...)
	g.LastPlayedCount = len(cards)
	g.LastPlayedBy = actor
	g.CurrentRank = rank
	g.CurrentTurn = g.nextAfter(actor)

	res := PlayResult{
		UserID:       actor,
		CardCount:    len(cards),
		DeclaredRank: rank,
		NextTurn:     g.CurrentTurn,
	}
	res.Winner = detectWinner(g)
	if res.Winner != "" {
		res.NextTurn = ""
	}
	return res, nil
}

// Challenge reveals the last play. A lie sends the pile to the player who made
// it, a truthful play sends it to the challenger. Whoever takes the pile leads next.
func Challenge(g *Game, challenger string) (ChallengeResult, error) {
	if g.State == StateFinished {
		return ChallengeResult{}, ErrGameAlreadyFinished
	}
	if g.State != StatePlaying {
		return ChallengeResult{}, ErrGameNotPlaying
	}
	if _, ok := g.Player(challenger); !ok {
		return ChallengeResult{}, ErrNotSeated
	}
	if !g.HasPendingPlay() || len(g.Pile) < g.LastPlayedCount {
		return ChallengeResult{}, ErrNothingToChallenge
	}
	if g.LastPlayedBy == challenger {
		return ChallengeResult{}, ErrCannotChallengeSelf
	}

	revealed := append([]Card(nil), g.Pile[len(g.Pile)-g.LastPlayedCount:]...)
	liar := g.CurrentRank == ""
	for _, c := range revealed {
		if !strings.EqualFold(string(c.Rank()), string(g.CurrentRank)) {
			liar = true
			break
		}
	}

	res := ChallengeResult{
		Liar:         liar,
		ChallengerID: challenger,
		ChallengedID: g.LastPlayedBy,
		DeclaredRank: g.CurrentRank,
		Revealed:     revealed,
		PileSize:     len(g.Pile),
	}
	res.RecipientID = challenger
	if liar {
		res.RecipientID = g.LastPlayedBy
	}

	recipient, ok := g.Player(res.RecipientID)
	if !ok {
		return ChallengeResult{}, ErrNotSeated
	}
	recipient.Hand = append(recipient.Hand, g.Pile...)
	g.Pile = nil
	g.CurrentRank = ""
	g.LastPlayedCount = 0
	g.LastPlayedBy = ""
	g.CurrentTurn = res.RecipientID

	res.Winner = detectWinner(g)
	return res, nil
}

// detectWinner finishes the game as soon as any seat, scanned in position
// order, holds no cards.
func detectWinner(g *Game) string {
	g.sortPlayers()
	for _, p := range g.Players {
		if len(p.Hand) == 0 {
			g.State = StateFinished
			g.Winner = p.UserID
			g.CurrentTurn = ""
			return p.UserID
		}
	}
	return ""
}

func (g *Game) nextAfter(userID string) string {
	g.sortPlayers()
	for i, p := range g.Players {
		if p.UserID == userID {
			return g.Players[(i+1)%len(g.Players)].UserID
		}
	}
	return ""
}

func rankAllowed(current, declared Rank) bool {
	for _, r := range NextValidRanks(current) {
		if r == declared {
			return true
		}
	}
	return false
}
