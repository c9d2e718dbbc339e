package anticheat

import "github.com/housekeeper/internal/domain"

// ExpectedFrameTime is the 60Hz frame period in milliseconds
const ExpectedFrameTime = 16 + 2.0/3.0

// frameEpsilon absorbs float error from scaling, so a sample that lands on
// the baseline after conversion is never miscounted as early
const frameEpsilon = 1e-9

// ConversionFactor maps raw replay frame times back to real time for the
// speed-changing mods. Double time wins when both bits are set.
func ConversionFactor(mods domain.Mods) float64 {
	switch {
	case mods.Has(domain.ModDoubleTime):
		return 1 / 1.5
	case mods.Has(domain.ModHalfTime):
		return 1 / 0.75
	default:
		return 1
	}
}

// ScaleFrameTimes returns samples multiplied by factor
func ScaleFrameTimes(samples []float64, factor float64) []float64 {
	scaled := make([]float64, len(samples))
	for i, s := range samples {
		scaled[i] = s * factor
	}
	return scaled
}

func earlyFrame(scaled float64) bool {
	return scaled < ExpectedFrameTime-frameEpsilon
}

// PartitionFrameTimes counts already scaled samples below the baseline
// (before) and at or above it (after)
func PartitionFrameTimes(scaled []float64) (before, after int) {
	for _, s := range scaled {
		if earlyFrame(s) {
			before++
		} else {
			after++
		}
	}
	return before, after
}

// CountFrameTimes scales and partitions raw samples in one pass
func CountFrameTimes(raw []float64, factor float64) (before, after int) {
	for _, s := range raw {
		if earlyFrame(s * factor) {
			before++
		} else {
			after++
		}
	}
	return before, after
}

// FrameRatio returns after/before as a percentage. ok is false when no frame
// came early, since the ratio is then undefined and the replay looks normal.
func FrameRatio(before, after int) (ratio float64, ok bool) {
	if before == 0 {
		return 0, false
	}
	return float64(after) / float64(before) * 100, true
}
