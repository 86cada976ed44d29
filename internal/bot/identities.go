package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// IDPrefix marks bot user ids so they never collide with real accounts.
const IDPrefix = "bot-"

type BotIdentity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Level       Level  `json:"level"`
}

var defaultIdentities = []BotIdentity{
	{UserID: IDPrefix + "ada", DisplayName: "Ada", Level: LevelHonest},
	{UserID: IDPrefix + "bram", DisplayName: "Bram", Level: LevelBluffer},
	{UserID: IDPrefix + "cleo", DisplayName: "Cleo", Level: LevelSkeptic},
	{UserID: IDPrefix + "dax", DisplayName: "Dax", Level: LevelBluffer},
	{UserID: IDPrefix + "esme", DisplayName: "Esme", Level: LevelSkeptic},
	{UserID: IDPrefix + "finn", DisplayName: "Finn", Level: LevelHonest},
	{UserID: IDPrefix + "gus", DisplayName: "Gus", Level: LevelBluffer},
	{UserID: IDPrefix + "hana", DisplayName: "Hana", Level: LevelSkeptic},
}

// Identities is an ordered pool of bot profiles.
type Identities []BotIdentity

// DefaultIdentities returns the built-in pool.
func DefaultIdentities() Identities {
	return append(Identities(nil), defaultIdentities...)
}

// LoadIdentities loads bot profiles from a JSON file. Ids missing the bot
// prefix get it added.
func LoadIdentities(path string) (Identities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot identities: %w", err)
	}
	var ids Identities
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bot identities: %w", err)
	}
	for i := range ids {
		if ids[i].UserID == "" {
			return nil, fmt.Errorf("bot identity %d has no user_id", i)
		}
		if !IsBot(ids[i].UserID) {
			ids[i].UserID = IDPrefix + ids[i].UserID
		}
		if _, err := NewBrain(ids[i].Level); err != nil {
			return nil, fmt.Errorf("bot %s: %w", ids[i].UserID, err)
		}
	}
	return ids, nil
}

// Get returns an identity by index (mod pool size).
func (ids Identities) Get(index int) BotIdentity {
	if len(ids) == 0 {
		return BotIdentity{
			UserID:      fmt.Sprintf("%s%d", IDPrefix, index),
			DisplayName: fmt.Sprintf("AI Player %d", index),
			Level:       Levels[index%len(Levels)],
		}
	}
	return ids[index%len(ids)]
}

// Find returns the identity with userID. Ids missing from the pool get an
// honest profile named after the id.
func (ids Identities) Find(userID string) BotIdentity {
	for _, id := range ids {
		if id.UserID == userID {
			return id
		}
	}
	return BotIdentity{
		UserID:      userID,
		DisplayName: strings.TrimPrefix(userID, IDPrefix),
		Level:       LevelHonest,
	}
}

// IsBot reports whether the given user ID belongs to a bot.
func IsBot(userID string) bool {
	return strings.HasPrefix(userID, IDPrefix)
}
