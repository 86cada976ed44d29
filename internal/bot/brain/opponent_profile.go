package brain

import "bluff/internal/domain"

// OpponentProfile tracks the claim history of a specific player.
type OpponentProfile struct {
	UserID string
	Claims int
	// Caught and Vindicated count challenges against this player that exposed a lie or the truth.
	Caught     int
	Vindicated int
	// ClaimedRanks counts how often each rank was declared.
	ClaimedRanks map[domain.Rank]int
}

// NewOpponentProfile initializes a profile for a specific player.
func NewOpponentProfile(userID string) *OpponentProfile {
	return &OpponentProfile{
		UserID:       userID,
		ClaimedRanks: make(map[domain.Rank]int),
	}
}

// RecordClaim logs a face-down play.
func (p *OpponentProfile) RecordClaim(count int, rank domain.Rank) {
	if count <= 0 {
		return
	}
	p.Claims++
	p.ClaimedRanks[rank] += count
}

// RecordOutcome logs the result of a challenge against this player.
func (p *OpponentProfile) RecordOutcome(liar bool) {
	if liar {
		p.Caught++
	} else {
		p.Vindicated++
	}
}

// LieRate estimates how often this player lies when challenged, starting from
// an even prior.
func (p *OpponentProfile) LieRate() float64 {
	return float64(p.Caught+1) / float64(p.Caught+p.Vindicated+2)
}
