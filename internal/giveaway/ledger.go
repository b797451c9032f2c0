package giveaway

// ToggleResult reports which way a toggle flipped.
type ToggleResult int

const (
	ToggleEntered ToggleResult = iota
	ToggleLeft
)

// Toggle flips a user's entry. A present entrant is removed; an absent one
// is appended with bonus weight computed from the role snapshot against
// the giveaway's extra-entry table. Entries is recomputed from the list so
// the denormalized counter can never drift.
//
// Eligibility must already have been checked; Toggle does none of it.
func (g *Giveaway) Toggle(userID, username string, roles []string) ToggleResult {
	for i, entrant := range g.Entrants {
		if entrant.EntrantID == userID {
			g.Entrants = append(g.Entrants[:i], g.Entrants[i+1:]...)
			g.Entries = len(g.Entrants)
			return ToggleLeft
		}
	}

	g.Entrants = append(g.Entrants, Entrant{
		EntrantID:       userID,
		EntrantUsername: username,
		ExtraEntries:    g.bonusEntries(roles),
	})
	g.Entries = len(g.Entrants)
	return ToggleEntered
}

func (g *Giveaway) bonusEntries(roles []string) int {
	total := 0
	for _, extra := range g.ExtraEntries {
		for _, role := range roles {
			if role == extra.RoleID {
				total += extra.Entries
				break
			}
		}
	}
	return total
}
