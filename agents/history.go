package agents

import (
	"math"
	"sort"
	"time"

	"mealwise"
)

// History is the rolling window of a user's meals and feedback that the
// secondary agents reason over. Meals are kept in ascending time order and
// include the meal that triggered the analysis.
type History struct {
	Meals    []mealwise.Meal
	Feedback []mealwise.Feedback
	Now      time.Time
}

func NewHistory(meals []mealwise.Meal, feedback []mealwise.Feedback, now time.Time) History {
	sorted := append([]mealwise.Meal(nil), meals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return History{Meals: sorted, Feedback: feedback, Now: now}
}

// DaysTracked is the number of distinct calendar days with a meal.
func (h History) DaysTracked() int {
	days := make(map[string]struct{})
	for _, m := range h.Meals {
		days[m.CreatedAt.Format(time.DateOnly)] = struct{}{}
	}
	return len(days)
}

// LoggingFrequency is meals per calendar day from the first meal to Now.
func (h History) LoggingFrequency() float64 {
	if len(h.Meals) == 0 {
		return 0
	}
	span := daysBetween(h.Meals[0].CreatedAt, h.Now) + 1
	return float64(len(h.Meals)) / float64(max(span, 1))
}

func (h History) EnergyTags() []mealwise.EnergyTag {
	var tags []mealwise.EnergyTag
	for _, m := range h.Meals {
		if m.EnergyTag != "" {
			tags = append(tags, m.EnergyTag)
		}
	}
	return tags
}

// LowEnergyShare is the fraction of tagged meals tagged low.
func (h History) LowEnergyShare() (float64, bool) {
	tags := h.EnergyTags()
	if len(tags) == 0 {
		return 0, false
	}
	low := 0
	for _, t := range tags {
		if t == mealwise.EnergyLow {
			low++
		}
	}
	return float64(low) / float64(len(tags)), true
}

// AverageEnergy maps low/medium/high to 0/0.5/1 and averages them.
func (h History) AverageEnergy() float64 {
	tags := h.EnergyTags()
	if len(tags) == 0 {
		return 0.5
	}
	var sum float64
	for _, t := range tags {
		switch t {
		case mealwise.EnergyMedium:
			sum += 0.5
		case mealwise.EnergyHigh:
			sum += 1
		}
	}
	return sum / float64(len(tags))
}

// MealHours returns each meal's time of day in fractional hours.
func (h History) MealHours() []float64 {
	hours := make([]float64, 0, len(h.Meals))
	for _, m := range h.Meals {
		hours = append(hours, float64(m.CreatedAt.Hour())+float64(m.CreatedAt.Minute())/60)
	}
	return hours
}

// TimingVariance is the variance of meal hours within each meal slot
// (morning, midday, evening, late), weighted by slot size.
func (h History) TimingVariance() float64 {
	slots := make(map[int][]float64)
	for _, hour := range h.MealHours() {
		slot := mealSlot(hour)
		if slot == lateSlot && hour < 6 {
			hour += 24
		}
		slots[slot] = append(slots[slot], hour)
	}
	var sum float64
	n := 0
	for _, hours := range slots {
		sum += variance(hours) * float64(len(hours))
		n += len(hours)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// TimingStability is 1 − min(variance/4, 1); 1 with fewer than two meals.
func (h History) TimingStability() float64 {
	if len(h.Meals) < 2 {
		return 1
	}
	return 1 - math.Min(h.TimingVariance()/4, 1)
}

const lateSlot = 3

func mealSlot(hour float64) int {
	switch {
	case hour >= 6 && hour < 12:
		return 0
	case hour >= 12 && hour < 17:
		return 1
	case hour >= 17 && hour < 21:
		return 2
	}
	return lateSlot
}

// AcceptanceRate is the share of feedback marking an estimate accurate.
func (h History) AcceptanceRate() float64 {
	if len(h.Feedback) == 0 {
		return 0.5
	}
	n := 0
	for _, f := range h.Feedback {
		if f.Type == mealwise.FeedbackAccurate {
			n++
		}
	}
	return float64(n) / float64(len(h.Feedback))
}

// InterventionSuccessRate is the share of feedback that did not report a
// wrong food.
func (h History) InterventionSuccessRate() float64 {
	if len(h.Feedback) == 0 {
		return 0.6
	}
	n := 0
	for _, f := range h.Feedback {
		if f.Type != mealwise.FeedbackWrongFood {
			n++
		}
	}
	return float64(n) / float64(len(h.Feedback))
}

// EngagementTrend compares meal counts in the second half of the window with
// the first half, in [-1, 1].
func (h History) EngagementTrend() float64 {
	if len(h.Meals) < 2 {
		return 0
	}
	start := h.Meals[0].CreatedAt
	mid := start.Add(h.Now.Sub(start) / 2)

	var first, second int
	for _, m := range h.Meals {
		if m.CreatedAt.Before(mid) {
			first++
		} else {
			second++
		}
	}
	return float64(second-first) / float64(first+second)
}

// LoggingGapDays is the longest run of whole days without a meal, including
// the run since the last meal before the current one.
func (h History) LoggingGapDays() int {
	if len(h.Meals) == 0 {
		return 0
	}
	longest := 0
	for i := 1; i < len(h.Meals); i++ {
		gap := daysBetween(h.Meals[i-1].CreatedAt, h.Meals[i].CreatedAt) - 1
		longest = max(longest, gap)
	}
	return longest
}

// Previous returns the most recent meal logged before at, excluding id.
func (h History) Previous(id string, at time.Time) (mealwise.Meal, bool) {
	for i := len(h.Meals) - 1; i >= 0; i-- {
		m := h.Meals[i]
		if m.ID == id || m.CreatedAt.After(at) {
			continue
		}
		return m, true
	}
	return mealwise.Meal{}, false
}

func daysBetween(a, b time.Time) int {
	da := StartOfDay(a)
	db := StartOfDay(b.In(a.Location()))
	return int(math.Round(db.Sub(da).Hours() / 24))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return sum / float64(len(xs))
}
