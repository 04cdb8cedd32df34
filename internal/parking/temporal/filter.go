// Package temporal debounces per-frame occupancy observations into a
// committed spot state.
package temporal

import (
	"fmt"
	"time"
)

// Default filter parameters. A spot must be seen occupied in more than 70%
// of the last four frames before it is committed OCCUPIED.
const (
	DefaultCapacity          = 4
	DefaultOccupiedThreshold = 0.7
)

// Params configures a Filter.
type Params struct {
	// Capacity is the number of most recent observations retained.
	Capacity int
	// OccupiedThreshold: commit OCCUPIED when the occupied fraction is
	// strictly greater than this.
	OccupiedThreshold float64
	// FreeThreshold: commit FREE when the occupied fraction is at or below
	// this. Fractions between the two thresholds hold the current state.
	FreeThreshold float64
}

// DefaultParams returns capacity 4, occupied > 0.7 and free ≤ 0.3.
func DefaultParams() Params {
	return Params{
		Capacity:          DefaultCapacity,
		OccupiedThreshold: DefaultOccupiedThreshold,
		FreeThreshold:     1 - DefaultOccupiedThreshold,
	}
}

// Validate checks that the parameters describe a usable filter.
func (p Params) Validate() error {
	if p.Capacity < 1 {
		return fmt.Errorf("history capacity must be >= 1, got %d", p.Capacity)
	}
	if p.OccupiedThreshold < 0 || p.OccupiedThreshold >= 1 {
		return fmt.Errorf("occupied threshold must be in [0, 1), got %v", p.OccupiedThreshold)
	}
	if p.FreeThreshold < 0 || p.FreeThreshold > p.OccupiedThreshold {
		return fmt.Errorf("free threshold must be in [0, %v], got %v", p.OccupiedThreshold, p.FreeThreshold)
	}
	return nil
}

// Stamp identifies the frame at which something happened.
type Stamp struct {
	Frame uint64
	Time  time.Time
}

// Filter holds the recent observations of one spot in a fixed-size ring
// and the committed state derived from them. A Filter is owned by a single
// goroutine.
type Filter struct {
	params  Params
	history []bool
	head    int // next write position
	size    int // observations stored
	hits    int // true observations currently stored

	current     bool
	lastChanged Stamp
}

// NewFilter returns an empty filter whose committed state starts at
// initial. Invalid params fall back to DefaultParams.
func NewFilter(params Params, initial bool) *Filter {
	if params.Validate() != nil {
		params = DefaultParams()
	}
	return &Filter{
		params:  params,
		history: make([]bool, params.Capacity),
		current: initial,
	}
}

// Push records an observation, evicting the oldest one when full, and
// re-evaluates the committed state. It reports whether the state changed.
//
// The occupied fraction is always taken over the full capacity, so a
// partially filled history counts missing slots as free.
func (f *Filter) Push(observed bool, at Stamp) bool {
	if f.size == len(f.history) {
		if f.history[f.head] {
			f.hits--
		}
	} else {
		f.size++
	}
	f.history[f.head] = observed
	if observed {
		f.hits++
	}
	f.head = (f.head + 1) % len(f.history)

	frac := f.OccupiedFraction()
	next := f.current
	switch {
	case frac > f.params.OccupiedThreshold:
		next = true
	case frac <= f.params.FreeThreshold:
		next = false
	}
	if next == f.current {
		return false
	}
	f.current = next
	f.lastChanged = at
	return true
}

// Current returns the committed state: true means OCCUPIED.
func (f *Filter) Current() bool { return f.current }

// LastChangedAt returns the stamp of the most recent commit change, or the
// zero Stamp if the state has never changed.
func (f *Filter) LastChangedAt() Stamp { return f.lastChanged }

// OccupiedFraction returns count(true) / capacity.
func (f *Filter) OccupiedFraction() float64 {
	return float64(f.hits) / float64(len(f.history))
}

// Len returns the number of stored observations.
func (f *Filter) Len() int { return f.size }

// Capacity returns the maximum number of stored observations.
func (f *Filter) Capacity() int { return len(f.history) }

// History returns the stored observations, oldest first.
func (f *Filter) History() []bool {
	out := make([]bool, 0, f.size)
	start := (f.head - f.size + len(f.history)) % len(f.history)
	for i := 0; i < f.size; i++ {
		out = append(out, f.history[(start+i)%len(f.history)])
	}
	return out
}
