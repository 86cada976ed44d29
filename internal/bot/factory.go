package bot

import (
	"fmt"
)

// Level names a bot strategy.
type Level string

const (
	LevelHonest  Level = "honest"
	LevelBluffer Level = "bluffer"
	LevelSkeptic Level = "skeptic"
)

// Levels lists every strategy, e.g. for filling a table with a mix.
var Levels = []Level{LevelHonest, LevelBluffer, LevelSkeptic}

// NewBrain creates a new AI brain based on the specified level.
func NewBrain(level Level) (Brain, error) {
	switch level {
	case LevelHonest:
		return &HonestBot{}, nil
	case LevelBluffer:
		return &BluffBot{BluffChance: 0.35, RandomChallenge: 0.1}, nil
	case LevelSkeptic:
		return &SkepticBot{}, nil
	default:
		return nil, fmt.Errorf("unknown bot level: %q", level)
	}
}
