package gc

import (
	"sort"

	"github.com/holdfast-ci/holdfast/pkg/manifest"
)

// Telemetry window and controller tuning constants.
const (
	// TelemetryWindow bounds every rolling GC metrics slice to its last N
	// runs.
	TelemetryWindow = 20

	// MinHeadroomBytes is the growth budget floor used before any prior
	// cap exists.
	MinHeadroomBytes uint64 = 2 * 1024 * 1024 * 1024
	// MinSteadyHeadroomBytes is the growth budget floor used once a prior
	// cap exists and observed growth is flat.
	MinSteadyHeadroomBytes uint64 = 256 * 1024 * 1024

	// maxGrowthFactorPct bounds how far the cap may rise in one run.
	maxGrowthFactorPct = 10
	// maxShrinkFactorPct bounds how far the cap may fall in one run.
	maxShrinkFactorPct = 10
	// growthDeadbandPct is the observed-growth threshold below which the
	// cap holds steady instead of ratcheting.
	growthDeadbandPct = 5
	// hardCeilingMinFinals is the minimum history length required before
	// the hard ceiling clamp is allowed to fire.
	hardCeilingMinFinals = 3
)

// PushBounded appends value to values, trimming from the front so the
// result never exceeds TelemetryWindow entries.
func PushBounded(values []uint64, value uint64) []uint64 {
	values = append(values, value)
	if len(values) > TelemetryWindow {
		values = values[len(values)-TelemetryWindow:]
	}
	return values
}

// SuggestCap derives the next size cap from rolling GC telemetry: a
// median-of-finals baseline widened by a p90-of-growth budget, clamped by a
// hard ceiling and then (with a prior cap) a deadband plus a 10%-per-run
// ratchet in either direction.
//
// seedFromCurrent is the currently observed artifact-tree size, used only
// when the telemetry has never recorded a seed of its own. SuggestCap
// reports ok=false when there is neither a telemetry seed nor a current
// size to seed from.
func SuggestCap(metrics manifest.GcMetrics, seedFromCurrent *uint64) (uint64, manifest.CapTrace, bool) {
	seed, seededFromCurrent, ok := resolveSeed(metrics, seedFromCurrent)
	if !ok {
		return 0, manifest.CapTrace{}, false
	}

	finals := finalsFromMetrics(metrics, seed)
	growths := growthsFromMetrics(metrics, finals, seed)
	finalGrowths := positiveFinalGrowths(finals)
	baseline := baselineFromFinals(finals)
	hasPrevCap := metrics.LastSuggestedCap != nil
	growthBudget := growthBudgetFromGrowths(growths, hasPrevCap)

	proposed := saturatingAdd(baseline, growthBudget)
	clampReason := "none"

	coldStartFromCurrent := seededFromCurrent &&
		metrics.LastSuggestedCap == nil &&
		len(metrics.RecentInitialSizes) == 0 &&
		len(metrics.RecentBytesFreed) == 0 &&
		len(metrics.RecentFinalSizes) == 0

	nonZeroFinals := nonZero(finals)
	if !coldStartFromCurrent && len(nonZeroFinals) >= hardCeilingMinFinals {
		sort.Slice(nonZeroFinals, func(i, j int) bool { return nonZeroFinals[i] < nonZeroFinals[j] })
		ceilingBase := percentile(nonZeroFinals, 75)
		hardCeiling := saturatingMul(ceilingBase, 2)
		if proposed > hardCeiling {
			proposed = hardCeiling
			clampReason = "hard-ceiling"
		}
	}

	if prevCap := metrics.LastSuggestedCap; prevCap != nil {
		observedP90 := percentile(finalGrowths, 90)
		var growthPct uint64
		if baseline != 0 {
			growthPct = saturatingMul(observedP90, 100) / baseline
		}

		if observedP90 == 0 {
			if baseline >= *prevCap {
				proposed = *prevCap
				clampReason = "deadband/hold"
			}
		} else if growthPct <= growthDeadbandPct {
			proposed = *prevCap
			clampReason = "deadband/hold"
		}

		maxUp := *prevCap + saturatingMul(*prevCap, maxGrowthFactorPct)/100
		maxDown := saturatingSub(*prevCap, saturatingMul(*prevCap, maxShrinkFactorPct)/100)

		baselineLower := min(baseline, maxUp)
		baselineLower = min(baselineLower, *prevCap)
		lower := max(maxDown, baselineLower)
		lower = min(lower, maxUp)

		clamped := clamp(proposed, lower, maxUp)
		if clamped != proposed {
			switch clamped {
			case maxUp:
				clampReason = "clamped:+growth"
			case maxDown:
				clampReason = "clamped:-shrink"
			default:
				clampReason = "clamped:baseline"
			}
		} else if clampReason == "none" {
			clampReason = "within-window"
		}
		proposed = clamped
	} else {
		proposed = max(proposed, baseline)
		if clampReason == "none" {
			clampReason = "cold-start"
		}
	}

	var observedGrowthPct uint64
	if baseline != 0 {
		observedGrowthPct = saturatingMul(percentile(finalGrowths, 90), 100) / maxUint64(baseline, 1)
	}

	return proposed, manifest.CapTrace{
		Baseline:          baseline,
		GrowthBudget:      growthBudget,
		ObservedGrowthPct: observedGrowthPct,
		ClampReason:       clampReason,
	}, true
}

func resolveSeed(metrics manifest.GcMetrics, seedFromCurrent *uint64) (seed uint64, fromCurrent, ok bool) {
	if metrics.SeedInitialSize != nil {
		return *metrics.SeedInitialSize, false, true
	}
	if seedFromCurrent != nil {
		return *seedFromCurrent, true, true
	}
	return 0, false, false
}

// finalsFromMetrics returns the window's final (post-GC) sizes, preferring
// the directly recorded series and falling back to initial-minus-freed for
// manifests written before RecentFinalSizes existed. An empty result is
// seeded with the current value so the controller always has at least one
// data point.
func finalsFromMetrics(metrics manifest.GcMetrics, seed uint64) []uint64 {
	var finals []uint64
	if len(metrics.RecentFinalSizes) > 0 {
		finals = append(finals, metrics.RecentFinalSizes...)
	} else {
		n := minInt(len(metrics.RecentInitialSizes), len(metrics.RecentBytesFreed))
		for i := 0; i < n; i++ {
			finals = append(finals, saturatingSub(metrics.RecentInitialSizes[i], metrics.RecentBytesFreed[i]))
		}
	}
	if len(finals) == 0 {
		finals = append(finals, seed)
	}
	return finals
}

func growthsFromMetrics(metrics manifest.GcMetrics, finals []uint64, seed uint64) []uint64 {
	n := minInt(len(finals), len(metrics.RecentInitialSizes))
	var growths []uint64
	for i := 1; i < n; i++ {
		prevFinal := seed
		if i-1 < len(finals) {
			prevFinal = finals[i-1]
		}
		growths = append(growths, saturatingSub(metrics.RecentInitialSizes[i], prevFinal))
	}
	return growths
}

func baselineFromFinals(finals []uint64) uint64 {
	sorted := append([]uint64(nil), finals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return percentile(sorted, 50)
}

func growthBudgetFromGrowths(growths []uint64, hasPrevCap bool) uint64 {
	positives := positiveOnly(growths)
	if len(positives) == 0 {
		if hasPrevCap {
			return MinSteadyHeadroomBytes
		}
		return MinHeadroomBytes
	}

	sort.Slice(positives, func(i, j int) bool { return positives[i] < positives[j] })
	p90 := percentile(positives, 90)
	if hasPrevCap {
		return max(p90, MinSteadyHeadroomBytes)
	}
	return max(p90, MinHeadroomBytes)
}

func positiveFinalGrowths(finals []uint64) []uint64 {
	var growths []uint64
	for i := 1; i < len(finals); i++ {
		g := saturatingSub(finals[i], finals[i-1])
		if g > 0 {
			growths = append(growths, g)
		}
	}
	sort.Slice(growths, func(i, j int) bool { return growths[i] < growths[j] })
	return growths
}

func positiveOnly(values []uint64) []uint64 {
	var out []uint64
	for _, v := range values {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func nonZero(values []uint64) []uint64 {
	var out []uint64
	for _, v := range values {
		if v != 0 {
			out = append(out, v)
		}
	}
	return out
}

// percentile uses the nearest-rank method on an already-sorted slice.
func percentile(sorted []uint64, p uint64) uint64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (uint64(len(sorted)-1)*p + 50) / 100
	if idx >= uint64(len(sorted)) {
		idx = uint64(len(sorted) - 1)
	}
	return sorted[idx]
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	product := a * b
	if product/a != b {
		return ^uint64(0)
	}
	return product
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 { return max(a, b) }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
