package brain

import (
	"bluff/internal/domain"
)

// CardStatus represents what the bot knows about a specific card.
type CardStatus int

const (
	StatusUnknown  CardStatus = iota // We don't know where it is
	StatusMine                       // In the bot's hand
	StatusInPile                     // Played face down by the bot and still on the pile
	StatusOpponent                   // Known to be in a specific opponent's hand
)

var deckOrder = domain.NewDeck()

var deckIndex = func() map[domain.Card]int {
	idx := make(map[domain.Card]int, domain.DeckSize)
	for i, c := range deckOrder {
		idx[c] = i
	}
	return idx
}()

// GameMemory stores the bot's private view of the game.
type GameMemory struct {
	// DeckStatus tracks all 52 cards in canonical deck order.
	DeckStatus [domain.DeckSize]CardStatus
	// Holders names the opponent holding each StatusOpponent card.
	Holders map[domain.Card]string
	// Opponents tracks claim history by user id.
	Opponents map[string]*OpponentProfile

	contributors map[string]bool
}

// NewMemory initializes a fresh memory state.
func NewMemory() *GameMemory {
	return &GameMemory{
		Holders:      make(map[domain.Card]string),
		Opponents:    make(map[string]*OpponentProfile),
		contributors: make(map[string]bool),
	}
}

// Reset clears the memory for a new game.
func (m *GameMemory) Reset() {
	for i := range m.DeckStatus {
		m.DeckStatus[i] = StatusUnknown
	}
	m.Holders = make(map[domain.Card]string)
	m.Opponents = make(map[string]*OpponentProfile)
	m.contributors = make(map[string]bool)
}

func (m *GameMemory) status(c domain.Card) CardStatus {
	i, ok := deckIndex[c]
	if !ok {
		return StatusUnknown
	}
	return m.DeckStatus[i]
}

func (m *GameMemory) set(c domain.Card, s CardStatus, holder string) {
	i, ok := deckIndex[c]
	if !ok {
		return
	}
	m.DeckStatus[i] = s
	if s == StatusOpponent {
		m.Holders[c] = holder
	} else {
		delete(m.Holders, c)
	}
}

// Profile returns the profile for userID, creating it on first use.
func (m *GameMemory) Profile(userID string) *OpponentProfile {
	p, ok := m.Opponents[userID]
	if !ok {
		p = NewOpponentProfile(userID)
		m.Opponents[userID] = p
	}
	return p
}

// UpdateHand marks hand as Mine. Cards that were Mine and are no longer held become Unknown.
func (m *GameMemory) UpdateHand(hand []domain.Card) {
	for i, status := range m.DeckStatus {
		if status == StatusMine {
			m.DeckStatus[i] = StatusUnknown
		}
	}
	for _, c := range hand {
		m.set(c, StatusMine, "")
	}
}

// RecordOwnPlay marks cards the bot just put on the pile.
func (m *GameMemory) RecordOwnPlay(selfID string, cards []domain.Card) {
	for _, c := range cards {
		m.set(c, StatusInPile, "")
	}
	m.contributors[selfID] = true
}

// RecordPlay logs a face-down play by any player.
func (m *GameMemory) RecordPlay(userID string, count int, rank domain.Rank) {
	m.contributors[userID] = true
	m.Profile(userID).RecordClaim(count, rank)
}

// RecordChallenge applies a resolved challenge. The whole pile went to
// recipient: the revealed cards and every card the bot had on the pile are now
// known to be theirs. What contributors were known to hold may have been
// played face down, so that knowledge is dropped.
func (m *GameMemory) RecordChallenge(selfID, challengedID, recipientID string, liar bool, revealed []domain.Card) {
	m.Profile(challengedID).RecordOutcome(liar)

	for c, holder := range m.Holders {
		if m.contributors[holder] {
			m.set(c, StatusUnknown, "")
		}
	}
	for i, status := range m.DeckStatus {
		if status == StatusInPile {
			m.DeckStatus[i] = StatusUnknown
			if recipientID != selfID {
				m.set(deckOrder[i], StatusOpponent, recipientID)
			}
		}
	}
	if recipientID != selfID {
		for _, c := range revealed {
			m.set(c, StatusOpponent, recipientID)
		}
	}
	m.contributors = make(map[string]bool)
}

// KnownHeldBy counts the cards of rank known to be in userID's hand.
func (m *GameMemory) KnownHeldBy(userID string, rank domain.Rank) int {
	n := 0
	for c, holder := range m.Holders {
		if holder == userID && c.Rank() == rank {
			n++
		}
	}
	return n
}

// ImpossibleClaim reports whether claimant cannot have played count cards of
// rank: too many of that rank are known to be somewhere else.
func (m *GameMemory) ImpossibleClaim(claimant string, rank domain.Rank, count int) bool {
	elsewhere := 0
	for i, status := range m.DeckStatus {
		c := deckOrder[i]
		if c.Rank() != rank {
			continue
		}
		switch status {
		case StatusMine, StatusInPile:
			elsewhere++
		case StatusOpponent:
			if m.Holders[c] != claimant {
				elsewhere++
			}
		}
	}
	return elsewhere+count > len(domain.Suits)
}
