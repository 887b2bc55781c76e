package agents

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	gramRangePattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*(?:g|grams?|ml)\b`)
	gramSinglePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:g|grams?|ml)\b`)
)

// PortionFactor returns the [lo, hi] multipliers that turn a reference
// estimate into one for the described portion. Explicit grams win over size
// words; they only apply when the reference is per perGrams grams.
func PortionFactor(portion string, perGrams float64) (lo, hi float64) {
	p := strings.ToLower(portion)

	if perGrams > 0 {
		if m := gramRangePattern.FindStringSubmatch(p); m != nil {
			a, errA := strconv.ParseFloat(m[1], 64)
			b, errB := strconv.ParseFloat(m[2], 64)
			if errA == nil && errB == nil && a > 0 && b > 0 {
				if a > b {
					a, b = b, a
				}
				return a / perGrams, b / perGrams
			}
		}
		if m := gramSinglePattern.FindStringSubmatch(p); m != nil {
			if g, err := strconv.ParseFloat(m[1], 64); err == nil && g > 0 {
				return g / perGrams, g / perGrams
			}
		}
	}

	switch {
	case strings.Contains(p, "small"):
		return 0.5, 0.8
	case strings.Contains(p, "large"):
		return 1.2, 1.8
	case strings.Contains(p, "medium"):
		return 0.8, 1.2
	}
	return 0.8, 1.2
}
