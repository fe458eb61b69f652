package categorize

import (
	"math"
	"sort"
	"time"
)

// Cadence is the repeat interval of a recurring transaction series.
type Cadence string

// Cadence constants.
const (
	CadenceNone     Cadence = "none"
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
)

// cadenceWindow is an inclusive range of day gaps.
type cadenceWindow struct {
	cadence  Cadence
	min, max int
}

var cadenceWindows = []cadenceWindow{
	{cadence: CadenceMonthly, min: 28, max: 32},
	{cadence: CadenceWeekly, min: 6, max: 8},
	{cadence: CadenceBiweekly, min: 13, max: 15},
}

// DetectCadence sorts dates and reports the cadence shared by every gap between
// consecutive dates. One gap outside the window disqualifies the whole series.
func DetectCadence(dates []time.Time) Cadence {
	if len(dates) < 2 {
		return CadenceNone
	}

	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := DayGaps(sorted)
	for _, w := range cadenceWindows {
		if allWithin(gaps, w.min, w.max) {
			return w.cadence
		}
	}
	return CadenceNone
}

// DayGaps returns the whole-day distances between consecutive dates.
func DayGaps(sorted []time.Time) []int {
	if len(sorted) < 2 {
		return nil
	}
	gaps := make([]int, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		days := sorted[i].Sub(sorted[i-1]).Hours() / 24
		gaps = append(gaps, int(math.Round(days)))
	}
	return gaps
}

func allWithin(gaps []int, lo, hi int) bool {
	for _, g := range gaps {
		if g < lo || g > hi {
			return false
		}
	}
	return true
}
