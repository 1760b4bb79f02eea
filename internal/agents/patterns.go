package agents

import (
	"context"
	"fmt"

	"attune/internal/agent"
	"attune/internal/crew"
	"attune/internal/domain"
	"attune/internal/resolve"
)

// MinPatternDays is the history needed before pattern detection runs.
const MinPatternDays = 7

type PatternOutput struct {
	Cards []domain.HypothesisCard `json:"cards" validate:"dive"`
}

// DetectPatterns runs the pattern pipeline once. checkins is the number of
// days on record; below MinPatternDays no pipeline runs and no cards return.
func (p Pipelines) DetectPatterns(ctx context.Context, l crew.Listener, userID string, checkins int) (PatternOutput, error) {
	if checkins < MinPatternDays {
		return PatternOutput{Cards: []domain.HypothesisCard{}}, nil
	}
	task := crew.Task{
		Name: "detect_patterns",
		Description: fmt.Sprintf("Read the last 14 days of history for user %s. Find up to three behavioral patterns linking mood, "+
			"energy, task completion and interventions. State each as a hypothesis with a prediction, a confidence of low, medium "+
			"or high, and the days that support it.", userID),
		ExpectedOutput: "JSON with cards: patternDetected, prediction, confidence, supportingEvidence (day, detail) and status.",
		Agent:          p.analyst(p.env(userID, "")),
		Output:         PatternOutput{},
	}
	out, err := p.crew("patterns", agent.Sequential, l, nil, task).Kickoff(ctx)
	if err != nil {
		return PatternOutput{}, err
	}
	cards, err := resolvePatterns(resolve.Raw{Object: out.Result.Object, Text: out.Result.Text})
	if err != nil {
		return PatternOutput{}, err
	}
	for i := range cards.Cards {
		if cards.Cards[i].Status == "" {
			cards.Cards[i].Status = domain.HypothesisActive
		}
		if cards.Cards[i].SupportingEvidence == nil {
			cards.Cards[i].SupportingEvidence = []domain.Evidence{}
		}
	}
	return cards, nil
}

// resolvePatterns accepts a schema-bound object, a bare array of cards in the
// text, or a {cards: [...]} object in the text, in that order.
func resolvePatterns(raw resolve.Raw) (PatternOutput, error) {
	if len(raw.Object) > 0 {
		if out := resolve.Resolve[PatternOutput](resolve.Raw{Object: raw.Object}); out.Kind == resolve.Validated {
			return out.Value, nil
		}
	}
	text := resolve.Raw{Text: raw.Text}
	if arr := resolve.Resolve[[]domain.HypothesisCard](text); arr.Kind != resolve.Failed {
		return PatternOutput{Cards: arr.Value}, nil
	}
	obj := resolve.Resolve[PatternOutput](text)
	out, err := obj.Result()
	if out.Cards == nil {
		out.Cards = []domain.HypothesisCard{}
	}
	return out, err
}
