package gc

import (
	"testing"

	"github.com/holdfast-ci/holdfast/pkg/manifest"
)

func u64(v uint64) *uint64 { return &v }

func TestPushBoundedTrimsToWindow(t *testing.T) {
	var values []uint64
	for i := uint64(0); i < TelemetryWindow+5; i++ {
		values = PushBounded(values, i)
	}
	if len(values) != TelemetryWindow {
		t.Fatalf("len(values) = %d, want %d", len(values), TelemetryWindow)
	}
	if values[0] != 5 {
		t.Errorf("values[0] = %d, want 5 (oldest entries trimmed)", values[0])
	}
}

func TestSuggestCapNoSeedReportsNotOK(t *testing.T) {
	_, _, ok := SuggestCap(manifest.GcMetrics{}, nil)
	if ok {
		t.Error("SuggestCap() ok = true, want false with no seed available")
	}
}

func TestSuggestCapColdStartSeedsFromCurrent(t *testing.T) {
	current := uint64(1_000_000_000)
	cap, trace, ok := SuggestCap(manifest.GcMetrics{}, &current)
	if !ok {
		t.Fatal("SuggestCap() ok = false, want true")
	}
	if cap < current {
		t.Errorf("cap = %d, want >= current size %d", cap, current)
	}
	if trace.ClampReason != "cold-start" {
		t.Errorf("ClampReason = %q, want cold-start", trace.ClampReason)
	}
}

func TestSuggestCapDeadbandHoldsCapWhenGrowthFlat(t *testing.T) {
	// baseline(finals) must be >= prevCap for the zero-growth deadband
	// branch to fire (autocap.go: "if baseline >= prevCap"); otherwise flat
	// growth still falls through to the shrink ratchet.
	prevCap := uint64(5_000_000_000)
	finals := []uint64{5_000_000_000, 5_000_000_000, 5_000_000_000, 5_000_000_000}
	metrics := manifest.GcMetrics{
		SeedInitialSize:    u64(5_000_000_000),
		RecentFinalSizes:   finals,
		RecentInitialSizes: finals,
		LastSuggestedCap:   &prevCap,
	}

	cap, trace, ok := SuggestCap(metrics, nil)
	if !ok {
		t.Fatal("SuggestCap() ok = false, want true")
	}
	if cap != prevCap {
		t.Errorf("cap = %d, want unchanged prevCap %d", cap, prevCap)
	}
	if trace.ClampReason != "deadband/hold" {
		t.Errorf("ClampReason = %q, want deadband/hold", trace.ClampReason)
	}
}

func TestSuggestCapRatchetsShrinkByAtMostTenPercent(t *testing.T) {
	prevCap := uint64(10_000_000_000)
	// A sharply smaller steady-state should pull the cap down, but never
	// by more than maxShrinkFactorPct in one run.
	finals := []uint64{1_000_000_000, 1_000_000_000, 1_000_000_000, 1_000_000_000, 1_000_000_000}
	metrics := manifest.GcMetrics{
		SeedInitialSize:    u64(1_000_000_000),
		RecentFinalSizes:   finals,
		RecentInitialSizes: finals,
		LastSuggestedCap:   &prevCap,
	}

	cap, trace, ok := SuggestCap(metrics, nil)
	if !ok {
		t.Fatal("SuggestCap() ok = false, want true")
	}
	minAllowed := prevCap - prevCap*maxShrinkFactorPct/100
	if cap < minAllowed {
		t.Errorf("cap = %d, want >= %d (at most %d%% shrink per run)", cap, minAllowed, maxShrinkFactorPct)
	}
	if trace.ClampReason == "none" {
		t.Errorf("ClampReason = %q, want a clamp to have fired", trace.ClampReason)
	}
}

func TestSuggestCapRatchetsGrowthByAtMostTenPercent(t *testing.T) {
	prevCap := uint64(10_000_000_000)
	// Spiky growth across the window should widen the cap, but never by
	// more than maxGrowthFactorPct in one run.
	initials := []uint64{8_000_000_000, 12_000_000_000, 16_000_000_000, 20_000_000_000}
	finals := []uint64{8_000_000_000, 9_000_000_000, 9_500_000_000, 9_800_000_000}
	metrics := manifest.GcMetrics{
		SeedInitialSize:    u64(8_000_000_000),
		RecentInitialSizes: initials,
		RecentFinalSizes:   finals,
		LastSuggestedCap:   &prevCap,
	}

	cap, _, ok := SuggestCap(metrics, nil)
	if !ok {
		t.Fatal("SuggestCap() ok = false, want true")
	}
	maxAllowed := prevCap + prevCap*maxGrowthFactorPct/100
	if cap > maxAllowed {
		t.Errorf("cap = %d, want <= %d (at most %d%% growth per run)", cap, maxAllowed, maxGrowthFactorPct)
	}
}

func TestSuggestCapHardCeilingClampsRunawayBaseline(t *testing.T) {
	// Three-plus nonzero finals establish a p75; a proposal far beyond
	// 2x that ceiling must be clamped, even with no prior cap.
	finals := []uint64{1_000_000, 1_000_000, 1_000_000, 1_000_000}
	metrics := manifest.GcMetrics{
		SeedInitialSize:  u64(1_000_000),
		RecentFinalSizes: finals,
		RecentInitialSizes: []uint64{
			1_000_000, 1_000_000, 1_000_000, 50_000_000_000,
		},
	}

	cap, trace, ok := SuggestCap(metrics, nil)
	if !ok {
		t.Fatal("SuggestCap() ok = false, want true")
	}
	if trace.ClampReason != "hard-ceiling" {
		t.Errorf("ClampReason = %q, want hard-ceiling", trace.ClampReason)
	}
	if cap > 2_000_000*2 {
		t.Errorf("cap = %d, want clamped near 2x p75 ceiling", cap)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []uint64{10, 20, 30, 40, 50}
	if got := percentile(sorted, 50); got != 30 {
		t.Errorf("percentile(50) = %d, want 30", got)
	}
	if got := percentile(sorted, 0); got != 10 {
		t.Errorf("percentile(0) = %d, want 10", got)
	}
	if got := percentile(sorted, 100); got != 50 {
		t.Errorf("percentile(100) = %d, want 50", got)
	}
}

func TestSaturatingArithmeticClampsAtMax(t *testing.T) {
	maxVal := ^uint64(0)
	if got := saturatingAdd(maxVal, 10); got != maxVal {
		t.Errorf("saturatingAdd overflow = %d, want %d", got, maxVal)
	}
	if got := saturatingMul(maxVal, 2); got != maxVal {
		t.Errorf("saturatingMul overflow = %d, want %d", got, maxVal)
	}
	if got := saturatingSub(5, 10); got != 0 {
		t.Errorf("saturatingSub underflow = %d, want 0", got)
	}
}
