// Package momentum scores recent wellbeing from a checkin series.
package momentum

import (
	"math"

	"attune/internal/domain"
)

const (
	// Window is the number of most recent checkins considered.
	Window = 14
	// Recent is how many trailing checkins get RecentWeight.
	Recent       = 3
	RecentWeight = 2.0
	// MinForDelta is the series length below which Delta is 0.
	MinForDelta = 6
)

type Result struct {
	Score int `json:"score"`
	Delta int `json:"delta"`
}

// Composite blends mood (0-10) and completion rate (0-100) into a 0-100 score.
func Composite(mood int, completionRate float64) float64 {
	return float64(mood)*10*0.6 + completionRate*0.4
}

// Calculate scores an oldest-first checkin series. Only the last Window entries count.
func Calculate(checkins []domain.Checkin) Result {
	if len(checkins) > Window {
		checkins = checkins[len(checkins)-Window:]
	}
	scores := make([]float64, len(checkins))
	for i, c := range checkins {
		scores[i] = Composite(c.MoodScore, c.CompletionRate())
	}
	return FromComposites(scores)
}

// FromComposites computes the weighted score and delta from composite scores.
func FromComposites(scores []float64) Result {
	n := len(scores)
	if n == 0 {
		return Result{}
	}
	var sum, weights float64
	for i, s := range scores {
		w := 1.0
		if i >= n-Recent {
			w = RecentWeight
		}
		sum += s * w
		weights += w
	}
	res := Result{Score: int(math.Round(sum / weights))}
	if n >= MinForDelta {
		res.Delta = int(math.Round(mean(scores[n-Recent:]) - mean(scores[:Recent])))
	}
	return res
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
