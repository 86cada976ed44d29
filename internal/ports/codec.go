package ports

import (
	"encoding/json"
	"fmt"

	"bluff/internal/domain"
)

// EncodeCards serializes a hand or pile as a JSON array of card tokens.
// A nil slice encodes as [].
func EncodeCards(cards []domain.Card) ([]byte, error) {
	if cards == nil {
		cards = []domain.Card{}
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return nil, fmt.Errorf("encode cards: %w", err)
	}
	return data, nil
}

// DecodeCards parses a JSON array of card tokens and rejects unknown tokens.
// Empty input decodes to an empty collection.
func DecodeCards(data []byte) ([]domain.Card, error) {
	if len(data) == 0 {
		return []domain.Card{}, nil
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	out := make([]domain.Card, 0, len(raw))
	for _, token := range raw {
		c, ok := domain.ParseCard(token)
		if !ok {
			return nil, fmt.Errorf("decode cards: unknown card %q", token)
		}
		out = append(out, c)
	}
	return out, nil
}
