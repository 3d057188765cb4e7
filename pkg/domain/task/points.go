package task

import (
	"math"
	"slices"
)

// StoryPointScale is the allowed set of story point values.
var StoryPointScale = []int{1, 2, 3, 5, 8, 13, 21}

// IsAllowedPoints reports whether n is on the story point scale.
func IsAllowedPoints(n int) bool {
	return slices.Contains(StoryPointScale, n)
}

// NearestPoints snaps a raw estimate to the closest value on the scale.
// Ties go to the lower value; anything below 1 becomes 1.
func NearestPoints(raw float64) int {
	best := StoryPointScale[0]
	bestDist := math.Abs(raw - float64(best))
	for _, p := range StoryPointScale[1:] {
		if d := math.Abs(raw - float64(p)); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// ClampConfidence restricts a confidence value to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
