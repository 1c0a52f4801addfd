package sampling

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/TobiSchelling/activelabel/internal/classify"
)

// Scorer returns P(label = 1) for each of the given training rows.
type Scorer func(rows []int) []float64

// Strategy picks the next batch of rows from the untrained complement.
type Strategy interface {
	Name() string
	Next(state *State, score Scorer, batch int) []int
}

// Random draws uniformly without replacement.
type Random struct {
	rng *rand.Rand
}

// NewRandom creates a seeded random strategy.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Name() string { return "random" }

// Next ignores the scorer.
func (r *Random) Next(state *State, _ Scorer, batch int) []int {
	pool := state.Untrained()
	if batch >= len(pool) {
		return pool
	}
	perm := r.rng.Perm(len(pool))[:batch]
	out := make([]int, batch)
	for i, p := range perm {
		out[i] = pool[p]
	}
	return out
}

// Uncertainty takes the rows whose posterior is closest to 0.5.
type Uncertainty struct{}

func (Uncertainty) Name() string { return "uncertainty" }

// Next scores the complement and returns the batch most uncertain rows.
// Equal uncertainty keeps ascending row order.
func (Uncertainty) Next(state *State, score Scorer, batch int) []int {
	pool := state.Untrained()
	if len(pool) == 0 {
		return nil
	}
	probs := score(pool)
	type ranked struct {
		row int
		u   float64
	}
	rows := make([]ranked, len(pool))
	for i, row := range pool {
		rows[i] = ranked{row: row, u: classify.Uncertainty(probs[i])}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].u > rows[j].u })

	n := min(batch, len(rows))
	out := make([]int, n)
	for i := range out {
		out[i] = rows[i].row
	}
	return out
}

// ParseStrategy builds a strategy from its config name. seed feeds the
// random strategy.
func ParseStrategy(name string, seed int64) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random":
		return NewRandom(seed), nil
	case "uncertainty":
		return Uncertainty{}, nil
	default:
		return nil, fmt.Errorf("unknown sampling strategy %q", name)
	}
}
