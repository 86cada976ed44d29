package bot

import (
	"math/rand"

	"bluff/internal/bot/brain"
	"bluff/internal/domain"
)

// Move represents the decision made by the AI.
type Move struct {
	Challenge    bool
	Cards        []domain.Card
	DeclaredRank domain.Rank
}

// Table is everything a bot may see when deciding: the public game plus its own hand.
type Table struct {
	Self            string
	Hand            []domain.Card
	CurrentTurn     string
	CurrentRank     domain.Rank
	LastPlayedBy    string
	LastPlayedCount int
	PileSize        int
	CardCounts      map[string]int
	Memory          *brain.GameMemory
}

// Brain is the interface that all bot strategies must implement.
type Brain interface {
	// ShouldChallenge is asked once per play made by someone else.
	ShouldChallenge(t Table, rng *rand.Rand) bool
	// ChoosePlay is asked when it is the bot's turn. The move must hold at least one card.
	ChoosePlay(t Table, rng *rand.Rand) Move
}
