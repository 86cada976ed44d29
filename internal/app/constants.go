package app

import "bluff/internal/domain"

// MinPlayersToStartGame defines the minimum number of occupied seats required to start a game.
const MinPlayersToStartGame = domain.MinPlayers

// DefaultMaxPlayers is the table size used when a create request leaves it out.
const DefaultMaxPlayers = 4

// MaxPlayersLimit caps the table size a create request may ask for.
const MaxPlayersLimit = 8

// Rules are the tunable table rules shared by every game a Service runs.
type Rules struct {
	MinPlayers        int
	DefaultMaxPlayers int
	MaxPlayersLimit   int
	RankPolicy        domain.RankPolicy
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		MinPlayers:        MinPlayersToStartGame,
		DefaultMaxPlayers: DefaultMaxPlayers,
		MaxPlayersLimit:   MaxPlayersLimit,
		RankPolicy:        domain.RankPolicyAny,
	}
}

func (r Rules) normalized() Rules {
	d := DefaultRules()
	if r.MinPlayers < d.MinPlayers {
		r.MinPlayers = d.MinPlayers
	}
	if r.MaxPlayersLimit < r.MinPlayers {
		r.MaxPlayersLimit = max(d.MaxPlayersLimit, r.MinPlayers)
	}
	if r.DefaultMaxPlayers < r.MinPlayers || r.DefaultMaxPlayers > r.MaxPlayersLimit {
		r.DefaultMaxPlayers = max(r.MinPlayers, min(d.DefaultMaxPlayers, r.MaxPlayersLimit))
	}
	if r.RankPolicy == "" {
		r.RankPolicy = d.RankPolicy
	}
	return r
}
