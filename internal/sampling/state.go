// Package sampling tracks which training rows have been selected and picks
// the next batch to label.
package sampling

import (
	"errors"
	"fmt"
)

// ErrDuplicate is returned when a row is selected twice.
var ErrDuplicate = errors.New("row already selected")

// State is the growing set of selected training rows. It never shrinks and
// never holds the same row twice.
type State struct {
	n        int
	member   []bool
	selected []int
}

// NewState creates an empty selection over n training rows.
func NewState(n int) *State {
	return &State{n: n, member: make([]bool, n)}
}

// Add selects the given rows. Nothing is added if any index is out of range
// or already selected.
func (s *State) Add(indices ...int) error {
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= s.n {
			return fmt.Errorf("row %d out of range [0, %d)", idx, s.n)
		}
		if s.member[idx] || seen[idx] {
			return fmt.Errorf("row %d: %w", idx, ErrDuplicate)
		}
		seen[idx] = true
	}
	for _, idx := range indices {
		s.member[idx] = true
		s.selected = append(s.selected, idx)
	}
	return nil
}

// Contains reports whether row idx is selected.
func (s *State) Contains(idx int) bool {
	return idx >= 0 && idx < s.n && s.member[idx]
}

// Selected returns the selected rows in the order they were added.
func (s *State) Selected() []int {
	return append([]int(nil), s.selected...)
}

// Len is the number of selected rows.
func (s *State) Len() int { return len(s.selected) }

// Size is the total number of training rows.
func (s *State) Size() int { return s.n }

// Untrained returns the rows not yet selected, in ascending order.
func (s *State) Untrained() []int {
	out := make([]int, 0, s.n-len(s.selected))
	for i, in := range s.member {
		if !in {
			out = append(out, i)
		}
	}
	return out
}
