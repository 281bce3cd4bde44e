// Package align finds nearest-neighbour matches between two irregularly
// sampled, sorted time series. It is pure: no I/O, no shared state.
package align

import (
	"errors"
	"sort"
	"time"
)

// ErrEmptySearch is returned when a lookup is attempted against an empty
// search array. It is fatal to that single call only.
var ErrEmptySearch = errors.New("align: empty search array")

// Match is the result of one bounded lookup. Matched is false when no search
// element fell within the allowed distance of the pivot.
type Match struct {
	Time    time.Time
	Matched bool
}

// FindClosest returns the element of search closest to pivot. search must be
// sorted ascending and non-empty. Pivots outside the range of search clamp to
// the boundary element. Ties between the two candidate neighbours resolve to
// the earlier one.
func FindClosest(search []time.Time, pivot time.Time) (time.Time, error) {
	if len(search) == 0 {
		return time.Time{}, ErrEmptySearch
	}

	// Left-insertion index: first element >= pivot.
	i := sort.Search(len(search), func(j int) bool { return !search[j].Before(pivot) })
	if i == 0 {
		return search[0], nil
	}
	if i == len(search) {
		return search[i-1], nil
	}

	before, at := search[i-1], search[i]
	if absDuration(pivot.Sub(before)) <= absDuration(at.Sub(pivot)) {
		return before, nil
	}
	return at, nil
}

// ClosestWithinDistance returns the element of search closest to pivot,
// provided it lies within maxDist of it. The bound is inclusive: a distance
// equal to maxDist is a match.
func ClosestWithinDistance(search []time.Time, pivot time.Time, maxDist time.Duration) (time.Time, bool, error) {
	nearest, err := FindClosest(search, pivot)
	if err != nil {
		return time.Time{}, false, err
	}
	if absDuration(nearest.Sub(pivot)) > maxDist {
		return time.Time{}, false, nil
	}
	return nearest, true, nil
}

// Align maps every pivot to its closest element of search. The result has the
// same length and order as pivots, and each slot depends only on its own
// pivot. search is stable-sorted on a copy before use, so callers need not
// guarantee ordering.
func Align(search, pivots []time.Time) ([]time.Time, error) {
	if len(search) == 0 {
		return nil, ErrEmptySearch
	}
	sorted := sortedCopy(search)

	out := make([]time.Time, len(pivots))
	for i, p := range pivots {
		closest, err := FindClosest(sorted, p)
		if err != nil {
			return nil, err
		}
		out[i] = closest
	}
	return out, nil
}

// AlignWithin is Align with an inclusive distance bound: pivots whose nearest
// search element lies further than maxDist away come back unmatched.
func AlignWithin(search, pivots []time.Time, maxDist time.Duration) ([]Match, error) {
	if len(search) == 0 {
		return nil, ErrEmptySearch
	}
	sorted := sortedCopy(search)

	out := make([]Match, len(pivots))
	for i, p := range pivots {
		closest, ok, err := ClosestWithinDistance(sorted, p, maxDist)
		if err != nil {
			return nil, err
		}
		out[i] = Match{Time: closest, Matched: ok}
	}
	return out, nil
}

func sortedCopy(times []time.Time) []time.Time {
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
