package dashboard

import (
	"time"
	"unicode/utf8"

	"attune/internal/domain"
)

const (
	KindHypothesis   = "hypothesis"
	KindIntervention = "intervention"

	reasoningPreview = 80
)

// Annotation pins a note to a trend day.
type Annotation struct {
	Day   int    `json:"day"`
	Kind  string `json:"kind" enum:"hypothesis,intervention"`
	Text  string `json:"text"`
	RefID string `json:"refId,omitempty"`
}

// DayIndex maps a calendar date (YYYY-MM-DD) to its trend day number.
type DayIndex map[string]int

// PlaceInterventions binds interventions to trend days. The creation date is
// tried first, then the date of the plan the intervention refers to.
// Interventions matching neither are left out.
func PlaceInterventions(ivs []domain.Intervention, days DayIndex, planDates map[string]string) []Annotation {
	var out []Annotation
	for _, iv := range ivs {
		day, ok := days[calendarDate(iv.CreatedAt)]
		if !ok && iv.PlanID != "" {
			if planDate, found := planDates[iv.PlanID]; found {
				day, ok = days[calendarDate(planDate)]
			}
		}
		if !ok {
			continue
		}
		out = append(out, Annotation{
			Day:   day,
			Kind:  KindIntervention,
			Text:  "Intervention: " + preview(iv.AgentReasoning, reasoningPreview) + "...",
			RefID: iv.ID,
		})
	}
	return out
}

// HypothesisAnnotations returns the annotations stored on hypothesis cards.
func HypothesisAnnotations(cards []domain.HypothesisCard) []Annotation {
	var out []Annotation
	for _, c := range cards {
		if c.AnnotationDay == nil || c.AgentAnnotation == nil {
			continue
		}
		out = append(out, Annotation{Day: *c.AnnotationDay, Kind: KindHypothesis, Text: *c.AgentAnnotation, RefID: c.ID})
	}
	return out
}

// calendarDate returns the UTC date of an RFC 3339 timestamp, or the leading
// date of anything else that starts with one.
func calendarDate(ts string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	if len(ts) >= len(time.DateOnly) {
		return ts[:len(time.DateOnly)]
	}
	return ts
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
