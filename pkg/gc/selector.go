package gc

import (
	"sort"
	"time"

	"github.com/holdfast-ci/holdfast/pkg/chrono"
)

// preservationBuffer absorbs clock drift and the gap between "build
// finished" and "gc started": artifacts no older than
// preservationNanos-buffer are protected even though they technically
// predate it.
const preservationBuffer = 5 * time.Minute

// Select chooses which bundles to evict, applying three fixed-order
// passes: a preservation filter that unconditionally protects artifacts
// from the most recent build, a size pass that evicts the oldest eligible
// bundles until the tree is back under capBytes, and an age pass that
// evicts anything still eligible and older than ageDays.
//
// The size pass may leave the tree above capBytes if preservation forbids
// further cuts; that is a deliberate correctness-over-budget choice, not a
// bug.
func Select(bundles []*Bundle, currentTotalBytes uint64, capBytes *uint64, ageDays int, preservationNanos *uint64) []*Bundle {
	eligible, _ := applyPreservationFilter(bundles, ageDays, preservationNanos)

	var toRemove []*Bundle
	toRemove, eligible = selectForSize(eligible, currentTotalBytes, capBytes)
	toRemove = append(toRemove, selectForAge(eligible, ageDays)...)
	return toRemove
}

func applyPreservationFilter(bundles []*Bundle, ageDays int, preservationNanos *uint64) (eligible, preserved []*Bundle) {
	if preservationNanos == nil || ageDays == 0 {
		return bundles, nil
	}

	preservedAt, _ := chrono.ToTime(*preservationNanos)
	now := time.Now()
	if preservedAt.After(now) {
		preservedAt = now
	}

	ageThreshold := time.Duration(ageDays) * 24 * time.Hour
	if now.Sub(preservedAt) > ageThreshold {
		// Stale preservation: the last anchor run is older than the age
		// window itself, so it shouldn't inhibit cleanup.
		return bundles, nil
	}

	cutoff := preservedAt.Add(-preservationBuffer)

	for _, b := range bundles {
		if !b.NewestMtime.Before(cutoff) {
			preserved = append(preserved, b)
		} else {
			eligible = append(eligible, b)
		}
	}
	return eligible, preserved
}

func selectForSize(remaining []*Bundle, currentTotalBytes uint64, capBytes *uint64) (toRemove, kept []*Bundle) {
	if capBytes == nil || currentTotalBytes <= *capBytes {
		return nil, remaining
	}

	needed := currentTotalBytes - *capBytes

	sorted := make([]*Bundle, len(remaining))
	copy(sorted, remaining)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NewestMtime.Before(sorted[j].NewestMtime)
	})

	var freed uint64
	for _, b := range sorted {
		if freed < needed {
			toRemove = append(toRemove, b)
			freed += b.TotalSize
		} else {
			kept = append(kept, b)
		}
	}
	return toRemove, kept
}

func selectForAge(remaining []*Bundle, ageDays int) []*Bundle {
	cutoff := time.Now().Add(-time.Duration(ageDays) * 24 * time.Hour)

	var toRemove []*Bundle
	for _, b := range remaining {
		if b.NewestMtime.Before(cutoff) {
			toRemove = append(toRemove, b)
		}
	}
	return toRemove
}
