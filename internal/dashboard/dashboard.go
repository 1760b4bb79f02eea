// Package dashboard assembles the trend, momentum and annotation view of a user's history.
package dashboard

import (
	"math"

	"attune/internal/domain"
	"attune/internal/momentum"
)

type TrendPoint struct {
	Day            int    `json:"day"`
	Date           string `json:"date" format:"date"`
	MoodScore      int    `json:"moodScore"`
	CompletionRate int    `json:"completionRate"`
	EnergyLevel    int    `json:"energyLevel"`
	TasksCompleted int    `json:"tasksCompleted"`
	TasksTotal     int    `json:"tasksTotal"`
}

type Dashboard struct {
	UserID      string                  `json:"userId"`
	Trend       []TrendPoint            `json:"trend"`
	Momentum    momentum.Result         `json:"momentum"`
	Hypotheses  []domain.HypothesisCard `json:"hypotheses"`
	Annotations []Annotation            `json:"annotations"`
	Profile     *domain.Profile         `json:"profile,omitempty"`
}

// Trend numbers an oldest-first checkin window from day 1 and indexes it by date.
func Trend(checkins []domain.Checkin) ([]TrendPoint, DayIndex) {
	points := make([]TrendPoint, len(checkins))
	index := make(DayIndex, len(checkins))
	for i, c := range checkins {
		day := i + 1
		points[i] = TrendPoint{
			Day:            day,
			Date:           c.Date,
			MoodScore:      c.MoodScore,
			CompletionRate: int(math.Round(c.CompletionRate())),
			EnergyLevel:    c.EnergyLevel,
			TasksCompleted: c.TasksCompleted,
			TasksTotal:     c.TasksTotal,
		}
		index[c.Date] = day
	}
	return points, index
}

// Input is everything Build reads from the record store.
type Input struct {
	UserID        string
	Checkins      []domain.Checkin
	Interventions []domain.Intervention
	Hypotheses    []domain.HypothesisCard
	PlanDates     map[string]string
	Profile       *domain.Profile
}

// Build assembles the dashboard. Checkins must be oldest first and at most
// momentum.Window long.
func Build(in Input) Dashboard {
	trend, days := Trend(in.Checkins)
	annotations := HypothesisAnnotations(in.Hypotheses)
	annotations = append(annotations, PlaceInterventions(in.Interventions, days, in.PlanDates)...)
	if annotations == nil {
		annotations = []Annotation{}
	}
	hypotheses := in.Hypotheses
	if hypotheses == nil {
		hypotheses = []domain.HypothesisCard{}
	}
	return Dashboard{
		UserID:      in.UserID,
		Trend:       trend,
		Momentum:    momentum.Calculate(in.Checkins),
		Hypotheses:  hypotheses,
		Annotations: annotations,
		Profile:     in.Profile,
	}
}
