package bot

import (
	"math/rand"
	"sort"

	"bluff/internal/domain"
)

// HonestBot only lies when it holds nothing it may declare, and only
// challenges claims it can prove false.
type HonestBot struct{}

func (b *HonestBot) ShouldChallenge(t Table, _ *rand.Rand) bool {
	return provablyFalse(t)
}

func (b *HonestBot) ChoosePlay(t Table, rng *rand.Rand) Move {
	if m, ok := truthfulPlay(t); ok {
		return m
	}
	return bluffPlay(t, 1, rng)
}

// BluffBot pads true plays with extra cards and sometimes challenges on a hunch.
type BluffBot struct {
	BluffChance     float64
	RandomChallenge float64
}

func (b *BluffBot) ShouldChallenge(t Table, rng *rand.Rand) bool {
	return provablyFalse(t) || rng.Float64() < b.RandomChallenge
}

func (b *BluffBot) ChoosePlay(t Table, rng *rand.Rand) Move {
	m, ok := truthfulPlay(t)
	if !ok {
		return bluffPlay(t, 1+rng.Intn(2), rng)
	}
	if rng.Float64() >= b.BluffChance || len(m.Cards) >= len(domain.Suits) {
		return m
	}
	if extra, ok := spareCard(t.Hand, m.DeclaredRank); ok {
		m.Cards = append(m.Cards, extra)
	}
	return m
}

// SkepticBot plays honestly and challenges big claims, players close to
// going out and players it has caught lying before.
type SkepticBot struct{}

func (b *SkepticBot) ShouldChallenge(t Table, rng *rand.Rand) bool {
	if provablyFalse(t) {
		return true
	}
	if t.CardCounts[t.LastPlayedBy] <= 2 || t.LastPlayedCount >= 3 {
		return true
	}
	rate := 0.5
	if t.Memory != nil {
		rate = t.Memory.Profile(t.LastPlayedBy).LieRate()
	}
	return rng.Float64() < rate*0.6
}

func (b *SkepticBot) ChoosePlay(t Table, rng *rand.Rand) Move {
	if m, ok := truthfulPlay(t); ok {
		return m
	}
	return bluffPlay(t, 1, rng)
}

func provablyFalse(t Table) bool {
	if t.Memory == nil || t.CurrentRank == "" {
		return false
	}
	return t.Memory.ImpossibleClaim(t.LastPlayedBy, t.CurrentRank, t.LastPlayedCount)
}

// allowedRanks are the ranks a bot may declare. Adjacent ranks are legal under
// every rank policy.
func allowedRanks(current domain.Rank) []domain.Rank {
	return domain.NextValidRanks(current)
}

func byRank(hand []domain.Card) map[domain.Rank][]domain.Card {
	out := make(map[domain.Rank][]domain.Card)
	for _, c := range hand {
		out[c.Rank()] = append(out[c.Rank()], c)
	}
	return out
}

// truthfulPlay plays every held card of the allowed rank the bot holds most of.
func truthfulPlay(t Table) (Move, bool) {
	groups := byRank(t.Hand)
	var best domain.Rank
	for _, r := range allowedRanks(t.CurrentRank) {
		if len(groups[r]) > len(groups[best]) {
			best = r
		}
	}
	if best == "" {
		return Move{}, false
	}
	cards := append([]domain.Card(nil), groups[best]...)
	domain.SortCards(cards)
	return Move{Cards: cards, DeclaredRank: best}, true
}

// bluffPlay dumps up to n cards from the bot's thinnest ranks under an allowed rank.
func bluffPlay(t Table, n int, rng *rand.Rand) Move {
	allowed := allowedRanks(t.CurrentRank)
	declared := allowed[rng.Intn(len(allowed))]

	groups := byRank(t.Hand)
	ranks := make([]domain.Rank, 0, len(groups))
	for r := range groups {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if len(groups[ranks[i]]) != len(groups[ranks[j]]) {
			return len(groups[ranks[i]]) < len(groups[ranks[j]])
		}
		return ranks[i] < ranks[j]
	})

	var cards []domain.Card
	for _, r := range ranks {
		for _, c := range groups[r] {
			if len(cards) == n {
				break
			}
			cards = append(cards, c)
		}
	}
	return Move{Cards: cards, DeclaredRank: declared}
}

// spareCard picks a card of another rank, preferring the bot's loneliest ones.
func spareCard(hand []domain.Card, declared domain.Rank) (domain.Card, bool) {
	groups := byRank(hand)
	var pick domain.Card
	best := 0
	for _, c := range hand {
		if c.Rank() == declared {
			continue
		}
		if n := len(groups[c.Rank()]); best == 0 || n < best {
			pick, best = c, n
		}
	}
	return pick, best > 0
}
