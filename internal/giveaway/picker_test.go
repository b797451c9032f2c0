package giveaway

import (
	"math/rand"
	"testing"
)

func entrantIDs(n int) []Entrant {
	entrants := make([]Entrant, 0, n)
	for i := 0; i < n; i++ {
		entrants = append(entrants, Entrant{EntrantID: string(rune('a' + i))})
	}
	return entrants
}

func TestSelectWinnersEmptyPool(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	if got := SelectWinners(nil, 3, rng); got != nil {
		t.Fatalf("expected nil winners for empty pool, got %v", got)
	}
	if got := SelectWinners(entrantIDs(3), 0, rng); got != nil {
		t.Fatalf("expected nil winners for zero count, got %v", got)
	}
}

func TestSelectWinnersDistinct(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entrants := entrantIDs(5)

	for trial := 0; trial < 200; trial++ {
		winners := SelectWinners(entrants, 3, rng)
		if len(winners) != 3 {
			t.Fatalf("expected 3 winners, got %d", len(winners))
		}
		seen := map[string]bool{}
		for _, id := range winners {
			if seen[id] {
				t.Fatalf("duplicate winner %q in %v", id, winners)
			}
			seen[id] = true
		}
	}
}

func TestSelectWinnersFewerEntrantsThanSlots(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	winners := SelectWinners(entrantIDs(2), 5, rng)
	if len(winners) != 2 {
		t.Fatalf("expected every entrant to win once, got %v", winners)
	}
}

// A heavily weighted entrant should win the single slot far more often
// than an unweighted one. With weights 10:1 the expected share is ~91%;
// anything above 75% over 2000 trials is well clear of noise.
func TestSelectWinnersRespectsWeight(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	entrants := []Entrant{
		{EntrantID: "whale", ExtraEntries: 9},
		{EntrantID: "minnow"},
	}

	whaleWins := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		winners := SelectWinners(entrants, 1, rng)
		if len(winners) != 1 {
			t.Fatalf("expected one winner, got %v", winners)
		}
		if winners[0] == "whale" {
			whaleWins++
		}
	}
	if whaleWins < trials*3/4 {
		t.Fatalf("weighted entrant won only %d/%d draws", whaleWins, trials)
	}
	if whaleWins == trials {
		t.Fatalf("unweighted entrant never won in %d draws", trials)
	}
}

func TestSelectWinnersClampsNonPositiveWeight(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	entrants := []Entrant{{EntrantID: "a", ExtraEntries: -5}}

	winners := SelectWinners(entrants, 1, rng)
	if len(winners) != 1 || winners[0] != "a" {
		t.Fatalf("entrant with negative bonus should still be drawable, got %v", winners)
	}
}

func TestSelectRerollExcludesCurrentWinners(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	entrants := entrantIDs(6)
	exclude := []string{"a", "b"}

	for trial := 0; trial < 200; trial++ {
		winners := SelectReroll(entrants, exclude, 2, rng)
		for _, id := range winners {
			if id == "a" || id == "b" {
				t.Fatalf("excluded entrant %q was drawn", id)
			}
		}
	}
}

func TestSelectRerollFallsBackWhenEveryoneExcluded(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	entrants := entrantIDs(2)

	winners := SelectReroll(entrants, []string{"a", "b"}, 1, rng)
	if len(winners) != 1 {
		t.Fatalf("expected a fallback draw from the full pool, got %v", winners)
	}
}

func TestSelectRerollEmptyEntrants(t *testing.T) {
	rng := rand.New(rand.NewSource(17))

	if got := SelectReroll(nil, []string{"a"}, 1, rng); got != nil {
		t.Fatalf("expected nil winners, got %v", got)
	}
}
