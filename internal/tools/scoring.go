package tools

import (
	"fmt"
	"math"

	"attune/internal/domain"
)

// PositiveThreshold is the ASRS Part A total at which a screen is positive.
const PositiveThreshold = 14

// dimensionItems maps each cognitive dimension to the two ASRS items it reads.
var dimensionItems = []struct {
	Name  string
	Label string
	Items [2]int
}{
	{"attention_regulation", "Attention Regulation", [2]int{0, 1}},
	{"time_perception", "Time Perception", [2]int{2, 3}},
	{"emotional_intensity", "Emotional Intensity", [2]int{4, 5}},
	{"working_memory", "Working Memory", [2]int{0, 2}},
	{"task_initiation", "Task Initiation", [2]int{3, 4}},
	{"hyperfocus_capacity", "Hyperfocus Capacity", [2]int{1, 5}},
}

type ASRSScore struct {
	TotalScore       int            `json:"total_score"`
	IsPositiveScreen bool           `json:"is_positive_screen"`
	Dimensions       map[string]int `json:"dimensions"`
}

// ScoreASRS scores six Part A answers, each 0-4. Dimension values are 0-100.
func ScoreASRS(answers []int) (ASRSScore, error) {
	if len(answers) != 6 {
		return ASRSScore{}, fmt.Errorf("expected 6 answers, got %d", len(answers))
	}
	total := 0
	for i, a := range answers {
		if a < 0 || a > 4 {
			return ASRSScore{}, fmt.Errorf("answer %d out of range 0-4: %d", i+1, a)
		}
		total += a
	}
	dims := make(map[string]int, len(dimensionItems))
	for _, d := range dimensionItems {
		raw := answers[d.Items[0]] + answers[d.Items[1]]
		dims[d.Name] = int(math.Round(float64(raw) / 8 * 100))
	}
	return ASRSScore{TotalScore: total, IsPositiveScreen: total >= PositiveThreshold, Dimensions: dims}, nil
}

// Radar lists the six dimensions in display order with labels and scored
// values. Insights are left empty.
func (s ASRSScore) Radar() []domain.Dimension {
	out := make([]domain.Dimension, 0, len(dimensionItems))
	for _, d := range dimensionItems {
		out = append(out, domain.Dimension{Key: d.Name, Label: d.Label, Value: s.Dimensions[d.Name]})
	}
	return out
}
