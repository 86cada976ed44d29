package domain

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"
)

// ShuffleSource names the randomness behind Shuffle.
type ShuffleSource string

const (
	// ShuffleSourceMath is a time-seeded math/rand generator.
	ShuffleSourceMath ShuffleSource = "math"
	// ShuffleSourceCrypto draws from crypto/rand.
	ShuffleSourceCrypto ShuffleSource = "crypto"
)

// NewDeck returns the 52-card deck in canonical order: rank-major, suit-minor.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, r := range Ranks {
		for _, s := range Suits {
			deck = append(deck, NewCard(r, s))
		}
	}
	return deck
}

// Shuffle permutes deck in place with Fisher-Yates and returns it.
func Shuffle(deck []Card, rng *rand.Rand) []Card {
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// NewRand builds the generator for the named source. An empty kind selects math.
func NewRand(kind ShuffleSource) (*rand.Rand, error) {
	switch kind {
	case "", ShuffleSourceMath:
		return rand.New(rand.NewSource(time.Now().UnixNano())), nil
	case ShuffleSourceCrypto:
		return rand.New(cryptoSource{}), nil
	default:
		return nil, fmt.Errorf("unknown shuffle source %q", kind)
	}
}

// cryptoSource adapts crypto/rand to rand.Source64.
type cryptoSource struct{}

func (cryptoSource) Seed(int64) {}

func (s cryptoSource) Int63() int64 {
	return int64(s.Uint64() & (1<<63 - 1))
}

func (cryptoSource) Uint64() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:])
}

// DealAll distributes every card of deck round-robin over seats, in seat
// order, taking from the front of the deck. Earlier seats receive the extra
// cards when the deck does not divide evenly. The deck is consumed.
func DealAll(deck *[]Card, seats []string) map[string][]Card {
	hands := make(map[string][]Card, len(seats))
	if len(seats) == 0 {
		return hands
	}
	for _, userID := range seats {
		hands[userID] = make([]Card, 0, len(*deck)/len(seats)+1)
	}
	for i, card := range *deck {
		userID := seats[i%len(seats)]
		hands[userID] = append(hands[userID], card)
	}
	*deck = (*deck)[:0]
	return hands
}
