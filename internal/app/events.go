package app

import (
	"time"

	"bluff/internal/domain"
)

// EventKind identifies emitted events; the value is the wire name clients listen for.
type EventKind string

const (
	EventGameUpdate   EventKind = "gameUpdate"
	EventPlayerAction EventKind = "playerAction"
	EventGameEnded    EventKind = "gameEnded"
	EventGameClosed   EventKind = "gameClosed"
)

// Action types carried by EventPlayerAction.
const (
	ActionPlayCards       = "playCards"
	ActionChallengeResult = "challengeResult"
)

// Event is an app event broadcast to the whole game room.
type Event struct {
	Kind    EventKind
	Payload any
}

// PlayerView is what everybody may know about a seat.
type PlayerView struct {
	UserID    string    `json:"userId"`
	Position  int       `json:"position"`
	CardCount int       `json:"cardCount"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// GameView is the public projection of a game. It never carries hands or pile contents.
type GameView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	CreatedBy       string       `json:"createdBy"`
	State           domain.State `json:"state"`
	MaxPlayers      int          `json:"maxPlayers"`
	CurrentTurn     string       `json:"currentTurn,omitempty"`
	CurrentRank     domain.Rank  `json:"currentRank,omitempty"`
	PileSize        int          `json:"pileSize"`
	LastPlayedCount int          `json:"lastPlayedCount"`
	LastPlayedBy    string       `json:"lastPlayedBy,omitempty"`
	Winner          string       `json:"winner,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	Players         []PlayerView `json:"players"`
}

// StateView answers a player's state query: the public game plus their own hand.
type StateView struct {
	Game          GameView      `json:"game"`
	Players       []PlayerView  `json:"players"`
	PlayerHand    []domain.Card `json:"playerHand"`
	CurrentUserID string        `json:"currentUserId"`
}

// LobbyEntry summarises a waiting game for listings.
type LobbyEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedBy   string    `json:"createdBy"`
	MaxPlayers  int       `json:"maxPlayers"`
	PlayerCount int       `json:"playerCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PlayCardsPayload struct {
	Type         string      `json:"type"`
	UserID       string      `json:"userId"`
	CardCount    int         `json:"cardCount"`
	DeclaredRank domain.Rank `json:"declaredRank"`
}

type ChallengeResultPayload struct {
	Type         string        `json:"type"`
	Liar         bool          `json:"liar"`
	ChallengerID string        `json:"challengerId"`
	ChallengedID string        `json:"challengedId"`
	DeclaredRank domain.Rank   `json:"declaredRank"`
	Revealed     []domain.Card `json:"revealed"`
	RecipientID  string        `json:"recipientId"`
	PileSize     int           `json:"pileSize"`
}

type GameEndedPayload struct {
	WinnerID string `json:"winnerId"`
}

type GameClosedPayload struct {
	GameID string `json:"gameId"`
}

// NewGameView projects a game for public consumption.
func NewGameView(g *domain.Game) GameView {
	v := GameView{
		ID:              g.ID,
		Name:            g.Name,
		CreatedBy:       g.CreatedBy,
		State:           g.State,
		MaxPlayers:      g.MaxPlayers,
		CurrentTurn:     g.CurrentTurn,
		CurrentRank:     g.CurrentRank,
		PileSize:        len(g.Pile),
		LastPlayedCount: g.LastPlayedCount,
		LastPlayedBy:    g.LastPlayedBy,
		Winner:          g.Winner,
		CreatedAt:       g.CreatedAt,
		Players:         make([]PlayerView, 0, len(g.Players)),
	}
	for _, p := range g.Players {
		v.Players = append(v.Players, PlayerView{
			UserID:    p.UserID,
			Position:  p.Position,
			CardCount: len(p.Hand),
			JoinedAt:  p.JoinedAt,
		})
	}
	return v
}

// NewStateView builds the state answer for userID. Non-seated users get an empty hand.
func NewStateView(g *domain.Game, userID string) StateView {
	gv := NewGameView(g)
	hand := []domain.Card{}
	if p, ok := g.Player(userID); ok {
		hand = append(hand, p.Hand...)
		domain.SortCards(hand)
	}
	return StateView{
		Game:          gv,
		Players:       gv.Players,
		PlayerHand:    hand,
		CurrentUserID: userID,
	}
}

func newLobbyEntry(g *domain.Game) LobbyEntry {
	return LobbyEntry{
		ID:          g.ID,
		Name:        g.Name,
		CreatedBy:   g.CreatedBy,
		MaxPlayers:  g.MaxPlayers,
		PlayerCount: len(g.Players),
		CreatedAt:   g.CreatedAt,
	}
}

func gameUpdateEvent(g *domain.Game) Event {
	return Event{Kind: EventGameUpdate, Payload: NewGameView(g)}
}
