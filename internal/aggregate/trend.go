package aggregate

import "math"

// PercentageChange returns the relative change from previous to current in percent.
// A zero previous value yields 100 when current is positive and 0 otherwise.
func PercentageChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

// PercentOfTarget returns value as a percentage of target, or 0 without a positive target.
func PercentOfTarget(value, target float64) float64 {
	if target <= 0 || math.IsNaN(value) {
		return 0
	}
	return value / target * 100
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
