package util

import "math"

// Round2 rounds to two decimal places, half away from zero. Worked hours and
// currency amounts are stored at this precision everywhere.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
