package gc

import (
	"testing"
	"time"

	"github.com/holdfast-ci/holdfast/pkg/chrono"
)

func bundle(name string, size uint64, age time.Duration) *Bundle {
	return &Bundle{
		Name:        name,
		Hash:        "0123456789abcdef",
		TotalSize:   size,
		NewestMtime: time.Now().Add(-age),
	}
}

func TestSelectForSizeEvictsOldestFirstUntilUnderCap(t *testing.T) {
	bundles := []*Bundle{
		bundle("a", 100, 3*time.Hour),
		bundle("b", 100, 2*time.Hour),
		bundle("c", 100, 1*time.Hour),
	}
	cap := uint64(150)

	toRemove := Select(bundles, 300, &cap, 30, nil)
	if len(toRemove) != 2 {
		t.Fatalf("len(toRemove) = %d, want 2", len(toRemove))
	}
	if toRemove[0].Name != "a" || toRemove[1].Name != "b" {
		t.Errorf("toRemove = %v, want [a b] (oldest-first)", toRemove)
	}
}

func TestSelectUnderCapRemovesNothingForSize(t *testing.T) {
	bundles := []*Bundle{bundle("a", 100, time.Hour)}
	cap := uint64(1000)

	toRemove := Select(bundles, 100, &cap, 30, nil)
	if len(toRemove) != 0 {
		t.Errorf("toRemove = %v, want none", toRemove)
	}
}

func TestSelectForAgeEvictsOlderThanThreshold(t *testing.T) {
	bundles := []*Bundle{
		bundle("fresh", 10, time.Hour),
		bundle("stale", 10, 10*24*time.Hour),
	}

	toRemove := Select(bundles, 20, nil, 7, nil)
	if len(toRemove) != 1 || toRemove[0].Name != "stale" {
		t.Errorf("toRemove = %v, want [stale]", toRemove)
	}
}

func TestSelectPreservationWindowProtectsRecentBuild(t *testing.T) {
	// A bundle touched one minute ago must survive a size-driven eviction
	// when it falls inside the preservation buffer of the most recent
	// anchor run, even though the tree is over cap.
	recent := bundle("recent", 500, time.Minute)
	preservationNanos := chrono.FromTime(time.Now())

	cap := uint64(100)
	toRemove := Select([]*Bundle{recent}, 500, &cap, 7, &preservationNanos)
	if len(toRemove) != 0 {
		t.Errorf("toRemove = %v, want none (bundle should be preserved)", toRemove)
	}
}

func TestSelectStalePreservationDoesNotInhibitCleanup(t *testing.T) {
	old := bundle("old", 500, 20*24*time.Hour)
	stalePreservation := chrono.FromTime(time.Now().Add(-30 * 24 * time.Hour))

	cap := uint64(100)
	toRemove := Select([]*Bundle{old}, 500, &cap, 7, &stalePreservation)
	if len(toRemove) != 1 {
		t.Errorf("toRemove = %v, want [old] (stale preservation should not inhibit)", toRemove)
	}
}

func TestSelectZeroAgeDaysDisablesPreservationFilter(t *testing.T) {
	recent := bundle("recent", 500, time.Minute)
	preservationNanos := chrono.FromTime(time.Now())

	cap := uint64(100)
	toRemove := Select([]*Bundle{recent}, 500, &cap, 0, &preservationNanos)
	if len(toRemove) != 1 {
		t.Errorf("toRemove = %v, want [recent] (ageDays=0 disables preservation)", toRemove)
	}
}
