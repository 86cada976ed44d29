package domain

import (
	"sort"
	"strings"
)

// Rank is the face value part of a card token.
type Rank string

// Suit is the single-letter suit part of a card token.
type Suit string

const (
	RankAce   Rank = "A"
	RankTwo   Rank = "2"
	RankThree Rank = "3"
	RankFour  Rank = "4"
	RankFive  Rank = "5"
	RankSix   Rank = "6"
	RankSeven Rank = "7"
	RankEight Rank = "8"
	RankNine  Rank = "9"
	RankTen   Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
)

const (
	SuitHearts   Suit = "H"
	SuitDiamonds Suit = "D"
	SuitClubs    Suit = "C"
	SuitSpades   Suit = "S"
)

// DeckSize is the number of cards in play for every game.
const DeckSize = 52

// Ranks lists every rank in ladder order.
var Ranks = []Rank{
	RankAce, RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven,
	RankEight, RankNine, RankTen, RankJack, RankQueen, RankKing,
}

// Suits lists every suit in canonical deck order.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

var rankAliases = map[string]Rank{
	"ACE":   RankAce,
	"KING":  RankKing,
	"QUEEN": RankQueen,
	"JACK":  RankJack,
}

// Card is a rank followed by a suit letter, e.g. "10H" or "QS".
type Card string

// NewCard joins a rank and a suit into a card token.
func NewCard(r Rank, s Suit) Card {
	return Card(string(r) + string(s))
}

// Rank returns the rank portion of the token (everything but the final character).
func (c Card) Rank() Rank {
	if len(c) < 2 {
		return ""
	}
	return Rank(c[:len(c)-1])
}

// Suit returns the final character of the token.
func (c Card) Suit() Suit {
	if len(c) < 2 {
		return ""
	}
	return Suit(c[len(c)-1:])
}

// Valid reports whether the token names one of the 52 canonical cards.
func (c Card) Valid() bool {
	return rankIndex(c.Rank()) >= 0 && suitIndex(c.Suit()) >= 0
}

func (c Card) String() string { return string(c) }

// ParseCard normalizes a client supplied token ("qs", " 10h ") into a canonical card.
func ParseCard(raw string) (Card, bool) {
	c := Card(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", false
	}
	return c, true
}

// ParseRank normalizes a declared rank. Matching is case-insensitive and accepts
// the word forms ACE, KING, QUEEN and JACK.
func ParseRank(raw string) (Rank, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if alias, ok := rankAliases[s]; ok {
		return alias, true
	}
	r := Rank(s)
	if rankIndex(r) < 0 {
		return "", false
	}
	return r, true
}

// NextValidRanks returns the ranks one step up and one step down the ladder
// from current, wrapping K to A. With no current claim every rank is allowed.
func NextValidRanks(current Rank) []Rank {
	idx := rankIndex(current)
	if idx < 0 {
		out := make([]Rank, len(Ranks))
		copy(out, Ranks)
		return out
	}
	n := len(Ranks)
	return []Rank{Ranks[(idx+1)%n], Ranks[(idx-1+n)%n]}
}

// SortCards orders cards by rank then suit, in place.
func SortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		return cardOrder(cards[i]) < cardOrder(cards[j])
	})
}

// RemoveCards removes the specified cards from a hand and returns the updated hand.
// It reports false, and leaves hand untouched, when any card is not held.
func RemoveCards(hand []Card, toRemove []Card) ([]Card, bool) {
	if len(toRemove) == 0 {
		return hand, true
	}

	removeCounts := make(map[Card]int, len(toRemove))
	for _, card := range toRemove {
		removeCounts[card]++
	}
	held := make(map[Card]int, len(hand))
	for _, card := range hand {
		held[card]++
	}
	for card, want := range removeCounts {
		if held[card] < want {
			return hand, false
		}
	}

	updated := make([]Card, 0, len(hand)-len(toRemove))
	for _, card := range hand {
		if count, ok := removeCounts[card]; ok && count > 0 {
			removeCounts[card] = count - 1
			continue
		}
		updated = append(updated, card)
	}
	return updated, true
}

func rankIndex(r Rank) int {
	for i, candidate := range Ranks {
		if candidate == r {
			return i
		}
	}
	return -1
}

func suitIndex(s Suit) int {
	for i, candidate := range Suits {
		if candidate == s {
			return i
		}
	}
	return -1
}

func cardOrder(c Card) int {
	return rankIndex(c.Rank())*len(Suits) + suitIndex(c.Suit())
}
