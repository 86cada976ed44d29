package domain

import "fmt"

// CheckInvariants verifies the structural rules every committed game must
// satisfy. Violations wrap ErrInvariant.
func (g *Game) CheckInvariants() error {
	seen := make(map[int]bool, len(g.Players))
	for _, p := range g.Players {
		if p.Position < 0 || p.Position >= len(g.Players) || seen[p.Position] {
			return violation("seat positions are not 0..%d", len(g.Players)-1)
		}
		seen[p.Position] = true
	}
	if len(g.Players) > g.MaxPlayers {
		return violation("%d players exceed max %d", len(g.Players), g.MaxPlayers)
	}

	if g.State == StateWaiting {
		if len(g.Pile) > 0 || g.CurrentTurn != "" {
			return violation("waiting game has a pile or a turn")
		}
		return nil
	}

	cards := make(map[Card]bool, DeckSize)
	total := 0
	collect := func(where string, cs []Card) error {
		for _, c := range cs {
			if !c.Valid() {
				return violation("non-canonical card %q in %s", c, where)
			}
			if cards[c] {
				return violation("card %s appears twice (%s)", c, where)
			}
			cards[c] = true
			total++
		}
		return nil
	}
	if err := collect("pile", g.Pile); err != nil {
		return err
	}
	for _, p := range g.Players {
		if err := collect("hand of "+p.UserID, p.Hand); err != nil {
			return err
		}
	}
	if total != DeckSize {
		return violation("%d cards in play, want %d", total, DeckSize)
	}

	if (g.LastPlayedBy == "") != (g.LastPlayedCount == 0) {
		return violation("last play by %q with count %d", g.LastPlayedBy, g.LastPlayedCount)
	}
	if g.LastPlayedCount > len(g.Pile) {
		return violation("last play count %d exceeds pile %d", g.LastPlayedCount, len(g.Pile))
	}

	switch g.State {
	case StatePlaying:
		if _, ok := g.Player(g.CurrentTurn); !ok {
			return violation("current turn %q is not seated", g.CurrentTurn)
		}
		if g.Winner != "" {
			return violation("playing game has winner %q", g.Winner)
		}
	case StateFinished:
		empty := 0
		for _, p := range g.Players {
			if len(p.Hand) == 0 {
				empty++
				if p.UserID != g.Winner {
					return violation("empty hand %q is not the winner %q", p.UserID, g.Winner)
				}
			}
		}
		if empty != 1 {
			return violation("finished game has %d empty hands", empty)
		}
	default:
		return violation("unknown state %q", g.State)
	}
	return nil
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
