package agents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/agent"
	"attune/internal/domain"
	"attune/internal/reasoning/reasoningtest"
	"attune/internal/resolve"
	"attune/internal/retry"
)

var fastRetry = retry.Policy{Attempts: 3, Unit: time.Millisecond}

func window(n int) *int { return &n }

func TestPlannerFallsBackWithSameInputAfterThreeFailures(t *testing.T) {
	in := PlanInput{UserID: "u1", BrainState: domain.BrainFoggy, Tasks: []string{"email", "taxes"}, TimeWindowMinutes: window(120)}
	orchestratedCalls := 0
	var directInputs []PlanInput
	var fallbackErr error
	pl := Planner{
		Orchestrated: PlanRunnerFunc(func(context.Context, PlanInput) (PlanOutput, error) {
			orchestratedCalls++
			return PlanOutput{}, errors.New("manager crashed")
		}),
		Direct: PlanRunnerFunc(func(_ context.Context, got PlanInput) (PlanOutput, error) {
			directInputs = append(directInputs, got)
			return PlanOutput{PlanID: "p1", Tasks: []domain.Task{{Title: "email"}}}, nil
		}),
		Retry:      fastRetry,
		OnFallback: func(err error) { fallbackErr = err },
	}

	res, err := pl.Plan(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, orchestratedCalls)
	require.Len(t, directInputs, 1)
	assert.Equal(t, in, directInputs[0])
	assert.Equal(t, agent.Sequential, res.Path)
	assert.Equal(t, "p1", res.Output.PlanID)
	assert.EqualError(t, fallbackErr, "manager crashed")
}

func TestPlannerPrefersOrchestratedPath(t *testing.T) {
	pl := Planner{
		Orchestrated: PlanRunnerFunc(func(context.Context, PlanInput) (PlanOutput, error) {
			return PlanOutput{PlanID: "h"}, nil
		}),
		Direct: PlanRunnerFunc(func(context.Context, PlanInput) (PlanOutput, error) {
			t.Fatal("direct pipeline should not run")
			return PlanOutput{}, nil
		}),
		Retry: fastRetry,
	}
	res, err := pl.Plan(context.Background(), PlanInput{})
	require.NoError(t, err)
	assert.Equal(t, agent.Hierarchical, res.Path)
}

func TestPlannerSurfacesDirectFailure(t *testing.T) {
	final := errors.New("direct attempt 3")
	calls := 0
	pl := Planner{
		Orchestrated: PlanRunnerFunc(func(context.Context, PlanInput) (PlanOutput, error) {
			return PlanOutput{}, errors.New("orchestrated")
		}),
		Direct: PlanRunnerFunc(func(context.Context, PlanInput) (PlanOutput, error) {
			calls++
			if calls == 3 {
				return PlanOutput{}, final
			}
			return PlanOutput{}, errors.New("direct")
		}),
		Retry: fastRetry,
	}
	_, err := pl.Plan(context.Background(), PlanInput{})
	assert.Same(t, final, err)
	assert.Equal(t, 3, calls)
}

func TestOrchestratedPlanUsesManagerBriefing(t *testing.T) {
	client := reasoningtest.New(
		reasoningtest.Text("Alex is foggy after two rough days."),
		reasoningtest.Object(PlanOutput{PlanID: "p9", Tasks: []domain.Task{{Index: 5, Title: "Water plants"}, {Title: "Email"}}, OverallRationale: "gentle"}),
	)
	p := Pipelines{Client: client}

	out, err := p.OrchestratedPlan(nil).RunPlan(context.Background(), PlanInput{UserID: "u1", BrainState: domain.BrainFoggy, TimeWindowMinutes: window(100)})
	require.NoError(t, err)
	assert.Equal(t, "p9", out.PlanID)
	require.Len(t, out.Tasks, 2)
	assert.Equal(t, 0, out.Tasks[0].Index)
	assert.Equal(t, 1, out.Tasks[1].Index)
	assert.Equal(t, "pending", out.Tasks[1].Status)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].System, string(agent.RoleManager))
	assert.Contains(t, reqs[1].Prompt, "Alex is foggy after two rough days.")
	assert.Contains(t, reqs[1].Prompt, "at most 80 minutes")
}

func TestDirectPlanResolvesFromText(t *testing.T) {
	client := reasoningtest.New(reasoningtest.Text(`Here you go: {"planId":"p2","tasks":[{"title":"Walk"}],"overallRationale":"move"} enjoy`))
	out, err := Pipelines{Client: client}.DirectPlan(nil).RunPlan(context.Background(), PlanInput{UserID: "u1", BrainState: domain.BrainWired})
	require.NoError(t, err)
	assert.Equal(t, "p2", out.PlanID)
	assert.Len(t, client.Requests(), 1)
}

func TestDirectPlanUnparseableIsParseError(t *testing.T) {
	client := reasoningtest.New(reasoningtest.Text("I am unable to plan today."))
	_, err := Pipelines{Client: client}.DirectPlan(nil).RunPlan(context.Background(), PlanInput{UserID: "u1"})
	var perr *resolve.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "I am unable to plan today.", perr.Raw)
}

func TestInterveneRetriesWholePipeline(t *testing.T) {
	client := reasoningtest.New(
		reasoningtest.Fail(errors.New("overloaded")),
		reasoningtest.Object(InterventionOutput{Acknowledgment: "That sounds heavy.", RestructuredTasks: []domain.Task{{Title: "Open the doc"}}, AgentReasoning: "tiny step"}),
	)
	p := Pipelines{Client: client, Retry: fastRetry}
	plan := domain.Plan{ID: "p1", BrainState: domain.BrainFoggy, Tasks: []domain.Task{{Title: "Write report"}}}

	out, err := p.Intervene(context.Background(), nil, InterventionInput{UserID: "u1", Plan: plan, StuckTaskIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, "That sounds heavy.", out.Acknowledgment)
	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Prompt, `"Write report"`)
}

func TestScreenRecomputesScores(t *testing.T) {
	client := reasoningtest.New(reasoningtest.Object(domain.Profile{ASRSTotalScore: 3, Summary: "Curious mind", Strengths: []string{"creativity"}}))
	profile, err := Pipelines{Client: client}.Screen(context.Background(), nil, ScreeningInput{UserID: "u1", Answers: []int{4, 3, 2, 2, 1, 3}})
	require.NoError(t, err)
	assert.Equal(t, 15, profile.ASRSTotalScore)
	assert.True(t, profile.IsPositiveScreen)
	assert.Equal(t, 88, profile.AttentionRegulation)
	assert.Equal(t, "Curious mind", profile.Summary)
	assert.NotNil(t, profile.Challenges)
}

func TestScreenKeepsInsightsAndOverwritesDimensionValues(t *testing.T) {
	client := reasoningtest.New(reasoningtest.Object(domain.Profile{
		Summary: "Your brain runs on interest.",
		Dimensions: []domain.Dimension{
			{Key: "attention_regulation", Label: "Attention", Value: 12, Insight: "Interest steers your focus."},
			{Key: "hyperfocus_capacity", Value: 99, Insight: "You can disappear into a problem."},
		},
		ProfileTags: []string{"Deep-Diver", "Time-Bender", "Pattern-Thinker", "Extra"},
	}))
	profile, err := Pipelines{Client: client}.Screen(context.Background(), nil, ScreeningInput{UserID: "u1", Answers: []int{4, 3, 2, 2, 1, 3}})
	require.NoError(t, err)
	require.Len(t, profile.Dimensions, 6)

	first := profile.Dimensions[0]
	assert.Equal(t, "attention_regulation", first.Key)
	assert.Equal(t, 88, first.Value)
	assert.Equal(t, "Attention", first.Label)
	assert.Equal(t, "Interest steers your focus.", first.Insight)

	last := profile.Dimensions[5]
	assert.Equal(t, "hyperfocus_capacity", last.Key)
	assert.Equal(t, 75, last.Value)
	assert.Equal(t, "Hyperfocus Capacity", last.Label)

	assert.Equal(t, "time_perception", profile.Dimensions[1].Key)
	assert.Empty(t, profile.Dimensions[1].Insight)
	assert.Equal(t, []string{"Deep-Diver", "Time-Bender", "Pattern-Thinker"}, profile.ProfileTags)
}

func TestScreenRejectsBadAnswersWithoutCallingBackend(t *testing.T) {
	client := reasoningtest.New()
	_, err := Pipelines{Client: client}.Screen(context.Background(), nil, ScreeningInput{Answers: []int{1}})
	require.Error(t, err)
	assert.Empty(t, client.Requests())
}

func TestDetectPatternsNeedsAWeekOfHistory(t *testing.T) {
	client := reasoningtest.New()
	out, err := Pipelines{Client: client}.DetectPatterns(context.Background(), nil, "u1", 6)
	require.NoError(t, err)
	assert.NotNil(t, out.Cards)
	assert.Empty(t, out.Cards)
	assert.Empty(t, client.Requests())
}

func TestDetectPatternsDefaultsStatus(t *testing.T) {
	client := reasoningtest.New(reasoningtest.Text(`[{"patternDetected":"Mood dips after late nights","prediction":"Tomorrow dips","confidence":"medium","supportingEvidence":[{"day":3,"detail":"mood 3"}]}]`))
	out, err := Pipelines{Client: client}.DetectPatterns(context.Background(), nil, "u1", 14)
	require.NoError(t, err)
	require.Len(t, out.Cards, 1)
	assert.Equal(t, domain.HypothesisActive, out.Cards[0].Status)
	assert.Equal(t, 3, out.Cards[0].SupportingEvidence[0].Day)
}

func TestResolvePatternsShapes(t *testing.T) {
	obj, err := resolvePatterns(resolve.Raw{Text: `{"cards":[{"patternDetected":"a","prediction":"b","confidence":"low"}]}`})
	require.NoError(t, err)
	assert.Len(t, obj.Cards, 1)

	_, err = resolvePatterns(resolve.Raw{Text: "nothing to see"})
	assert.Error(t, err)
}

func TestUsableMinutesKeepsBuffer(t *testing.T) {
	assert.Equal(t, 96, UsableMinutes(120))
	assert.Equal(t, 12, UsableMinutes(15))
}

func TestLoadKnowledge(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("second"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("first\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("no"), 0o644))

	got, err := LoadKnowledge(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got)

	got, err = LoadKnowledge(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
