package domain

import (
	"sort"
	"time"
)

// State represents the lifecycle stage of a game.
type State string

const (
	// StateWaiting is the lobby state where players can join and leave.
	StateWaiting State = "waiting"
	// StatePlaying is the active state where cards are played and challenged.
	StatePlaying State = "playing"
	// StateFinished is terminal; the game no longer accepts actions.
	StateFinished State = "finished"
)

// RankPolicy controls which ranks may be declared while a claim is active.
type RankPolicy string

const (
	// RankPolicyAny accepts any valid rank regardless of the current claim.
	RankPolicyAny RankPolicy = "any"
	// RankPolicyLadder only accepts ranks adjacent to the current claim.
	RankPolicyLadder RankPolicy = "ladder"
)

// Player is one occupied seat.
type Player struct {
	UserID   string
	Position int
	Hand     []Card
	JoinedAt time.Time
}

// Game is the authoritative state of a single table.
type Game struct {
	ID         string
	Name       string
	CreatedBy  string
	State      State
	MaxPlayers int
	Players    []*Player // ordered by Position

	CurrentTurn     string
	CurrentRank     Rank
	Pile            []Card
	LastPlayedCount int
	LastPlayedBy    string
	Winner          string

	CreatedAt time.Time
	// Version is the store revision this value was loaded at. Stores reject
	// saves whose Version no longer matches.
	Version int64
}

// Player looks up a seat by user id.
func (g *Game) Player(userID string) (*Player, bool) {
	for _, p := range g.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return nil, false
}

// SeatOrder returns user ids in position order.
func (g *Game) SeatOrder() []string {
	g.sortPlayers()
	out := make([]string, len(g.Players))
	for i, p := range g.Players {
		out[i] = p.UserID
	}
	return out
}

// IsFull reports whether no more players can join.
func (g *Game) IsFull() bool {
	return len(g.Players) >= g.MaxPlayers
}

// HasPendingPlay reports whether the last play can still be challenged.
func (g *Game) HasPendingPlay() bool {
	return g.LastPlayedCount > 0 && g.LastPlayedBy != ""
}

// Clone returns a deep copy so callers can mutate freely.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	out := *g
	out.Pile = append([]Card(nil), g.Pile...)
	out.Players = make([]*Player, len(g.Players))
	for i, p := range g.Players {
		cp := *p
		cp.Hand = append([]Card(nil), p.Hand...)
		out.Players[i] = &cp
	}
	return &out
}

func (g *Game) sortPlayers() {
	sort.SliceStable(g.Players, func(i, j int) bool {
		return g.Players[i].Position < g.Players[j].Position
	})
}
