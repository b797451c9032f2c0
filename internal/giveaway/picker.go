package giveaway

import "math/rand"

// SelectWinners draws up to count distinct entrant IDs by weighted
// sampling without replacement. Each entrant contributes 1+ExtraEntries
// copies to a flat pool; every draw removes all copies of the drawn
// entrant so nobody wins twice and remaining weights stay correct. The
// flat pool is not the most memory-efficient scheme, but it is auditable
// and easy to test.
func SelectWinners(entrants []Entrant, count int, rng *rand.Rand) []string {
	if count <= 0 || len(entrants) == 0 {
		return nil
	}

	pool := make([]string, 0, len(entrants))
	for _, entrant := range entrants {
		weight := 1 + entrant.ExtraEntries
		if weight < 1 {
			weight = 1
		}
		for i := 0; i < weight; i++ {
			pool = append(pool, entrant.EntrantID)
		}
	}

	var winners []string
	for len(winners) < count && len(pool) > 0 {
		drawn := pool[rng.Intn(len(pool))]
		winners = append(winners, drawn)

		kept := pool[:0]
		for _, id := range pool {
			if id != drawn {
				kept = append(kept, id)
			}
		}
		pool = kept
	}
	return winners
}

// SelectReroll draws count replacement winners from entrants minus the
// excluded IDs. If exclusion empties the pool while entrants remain, the
// draw falls back to the full entrant list rather than producing nobody.
func SelectReroll(entrants []Entrant, exclude []string, count int, rng *rand.Rand) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	eligible := make([]Entrant, 0, len(entrants))
	for _, entrant := range entrants {
		if _, skip := excluded[entrant.EntrantID]; !skip {
			eligible = append(eligible, entrant)
		}
	}
	if len(eligible) == 0 {
		eligible = entrants
	}
	return SelectWinners(eligible, count, rng)
}
