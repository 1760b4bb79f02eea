package agents

import (
	"context"
	"fmt"

	"attune/internal/agent"
	"attune/internal/crew"
	"attune/internal/domain"
	"attune/internal/resolve"
	"attune/internal/tools"
)

type ScreeningInput struct {
	UserID  string
	RunID   string
	Answers []int
	Notes   *string
}

// Screen runs the screening pipeline once. Score fields in the result are
// recomputed from the answers; the agent contributes the narrative fields.
func (p Pipelines) Screen(ctx context.Context, l crew.Listener, in ScreeningInput) (domain.Profile, error) {
	score, err := tools.ScoreASRS(in.Answers)
	if err != nil {
		return domain.Profile{}, err
	}
	desc := fmt.Sprintf("User %s answered the six ASRS Part A questions with %v (0=never, 4=very often).", in.UserID, in.Answers)
	if in.Notes != nil && *in.Notes != "" {
		desc += fmt.Sprintf("\nTheir own words: %q", *in.Notes)
	}
	desc += "\nScore the answers with score_asrs. Describe each of the six dimensions (attention_regulation, time_perception, " +
		"emotional_intensity, working_memory, task_initiation, hyperfocus_capacity) with its label, value 0-100 and one " +
		"empowering insight sentence. Higher means more of the trait, not worse. Give exactly three empowering profile tags " +
		"such as Deep-Diver or Time-Bender and a two to three sentence summary. " +
		"Save the portrait with save_profile_to_db and include the returned profile_id as profileId."
	task := crew.Task{
		Name:           "cognitive_portrait",
		Description:    desc,
		ExpectedOutput: "JSON cognitive profile with dimensions (key, label, value, insight), profileTags, summary, asrsTotalScore, isPositiveScreen, strengths, challenges and profileId.",
		Agent:          p.screener(p.env(in.UserID, in.RunID)),
		Output:         domain.Profile{},
	}
	out, err := p.crew("screening", agent.Sequential, l, nil, task).Kickoff(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	profile, err := resolve.Resolve[domain.Profile](resolve.Raw{Object: out.Result.Object, Text: out.Result.Text}).Result()
	if err != nil {
		return domain.Profile{}, err
	}
	ApplyScore(&profile, score)
	return profile, nil
}

// ProfileTagCount is how many profile tags a portrait carries.
const ProfileTagCount = 3

// ApplyScore overwrites the numeric profile fields with a computed score. Each
// of the six dimensions gets its computed value; the agent's label and insight
// for that key are kept.
func ApplyScore(p *domain.Profile, s tools.ASRSScore) {
	p.ASRSTotalScore = s.TotalScore
	p.IsPositiveScreen = s.IsPositiveScreen
	p.AttentionRegulation = s.Dimensions["attention_regulation"]
	p.TimePerception = s.Dimensions["time_perception"]
	p.EmotionalIntensity = s.Dimensions["emotional_intensity"]
	p.WorkingMemory = s.Dimensions["working_memory"]
	p.TaskInitiation = s.Dimensions["task_initiation"]
	p.HyperfocusCapacity = s.Dimensions["hyperfocus_capacity"]
	given := make(map[string]domain.Dimension, len(p.Dimensions))
	for _, d := range p.Dimensions {
		given[d.Key] = d
	}
	radar := s.Radar()
	for i, d := range radar {
		g, ok := given[d.Key]
		if !ok {
			continue
		}
		radar[i].Insight = g.Insight
		if g.Label != "" {
			radar[i].Label = g.Label
		}
	}
	p.Dimensions = radar
	if len(p.ProfileTags) > ProfileTagCount {
		p.ProfileTags = p.ProfileTags[:ProfileTagCount]
	}
	if p.ProfileTags == nil {
		p.ProfileTags = []string{}
	}
	if p.Strengths == nil {
		p.Strengths = []string{}
	}
	if p.Challenges == nil {
		p.Challenges = []string{}
	}
}
