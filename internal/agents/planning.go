package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"attune/internal/agent"
	"attune/internal/crew"
	"attune/internal/domain"
	"attune/internal/resolve"
	"attune/internal/retry"
)

// PlanInput is shared by the orchestrated and the direct planning pipelines.
type PlanInput struct {
	UserID            string
	// RunID ties the save tool to one request, across retries and the fallback.
	RunID             string
	BrainState        string
	Tasks             []string
	TimeWindowMinutes *int
}

type PlanOutput struct {
	PlanID           string        `json:"planId,omitempty"`
	Tasks            []domain.Task `json:"tasks" validate:"required,min=1,dive"`
	OverallRationale string        `json:"overallRationale"`
}

type PlanRunner interface {
	RunPlan(ctx context.Context, in PlanInput) (PlanOutput, error)
}

type PlanRunnerFunc func(ctx context.Context, in PlanInput) (PlanOutput, error)

func (f PlanRunnerFunc) RunPlan(ctx context.Context, in PlanInput) (PlanOutput, error) { return f(ctx, in) }

// Planner runs the orchestrated pipeline under retry and falls back to the
// direct pipeline, under its own retry, with the same input.
type Planner struct {
	Orchestrated PlanRunner
	Direct       PlanRunner
	Retry        retry.Policy
	Logger       *slog.Logger
	// OnFallback is told why the orchestrated pipeline was abandoned.
	OnFallback func(err error)
}

type PlanResult struct {
	Output PlanOutput
	// Path is the process that produced Output.
	Path agent.Process
}

func (pl Planner) Plan(ctx context.Context, in PlanInput) (PlanResult, error) {
	logger := pl.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := pl.Retry
	policy.Logger = logger

	policy.Name = "plan.hierarchical"
	out, err := retry.Do(ctx, policy, func(ctx context.Context) (PlanOutput, error) {
		return pl.Orchestrated.RunPlan(ctx, in)
	})
	if err == nil {
		return PlanResult{Output: out, Path: agent.Hierarchical}, nil
	}
	if ctx.Err() != nil {
		return PlanResult{}, err
	}

	logger.Warn("orchestrated planning failed, falling back to direct planning", "user_id", in.UserID, "error", err)
	if pl.OnFallback != nil {
		pl.OnFallback(err)
	}
	policy.Name = "plan.sequential"
	out, err = retry.Do(ctx, policy, func(ctx context.Context) (PlanOutput, error) {
		return pl.Direct.RunPlan(ctx, in)
	})
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Output: out, Path: agent.Sequential}, nil
}

// OrchestratedPlan is the manager plus planning specialist pipeline.
func (p Pipelines) OrchestratedPlan(l crew.Listener) PlanRunner {
	return PlanRunnerFunc(func(ctx context.Context, in PlanInput) (PlanOutput, error) {
		manager := crew.Task{
			Name: "coordinate_plan",
			Description: fmt.Sprintf("User %s wants a plan for today. Look up their cognitive profile and recent history "+
				"and note what the planner must account for: brain state %q, recent mood and completion trends, "+
				"interventions that helped or did not.", in.UserID, in.BrainState),
			ExpectedOutput: "A short briefing for the planning specialist.",
			Agent:          p.manager(p.env(in.UserID, in.RunID)),
		}
		c := p.crew("planning", agent.Hierarchical, l, &manager, p.planTask(in))
		return p.runPlanCrew(ctx, c)
	})
}

// DirectPlan is the planning specialist alone.
func (p Pipelines) DirectPlan(l crew.Listener) PlanRunner {
	return PlanRunnerFunc(func(ctx context.Context, in PlanInput) (PlanOutput, error) {
		c := p.crew("planning", agent.Sequential, l, nil, p.planTask(in))
		return p.runPlanCrew(ctx, c)
	})
}

func (p Pipelines) runPlanCrew(ctx context.Context, c crew.Crew) (PlanOutput, error) {
	out, err := c.Kickoff(ctx)
	if err != nil {
		return PlanOutput{}, err
	}
	plan, err := resolve.Resolve[PlanOutput](resolve.Raw{Object: out.Result.Object, Text: out.Result.Text}).Result()
	if err != nil {
		return PlanOutput{}, err
	}
	plan.Tasks = NormalizeTasks(plan.Tasks)
	return plan, nil
}

func (p Pipelines) planTask(in PlanInput) crew.Task {
	var b strings.Builder
	fmt.Fprintf(&b, "Create today's plan for user %s.\n", in.UserID)
	fmt.Fprintf(&b, "Brain state: %s. Strategy: %s\n", in.BrainState, BrainStateStrategy(in.BrainState))
	if in.TimeWindowMinutes != nil {
		fmt.Fprintf(&b, "Time window: %d minutes. Schedule at most %d minutes of work and leave the rest as buffer.\n",
			*in.TimeWindowMinutes, UsableMinutes(*in.TimeWindowMinutes))
	}
	if len(in.Tasks) > 0 {
		b.WriteString("Tasks the user wants to get to:\n")
		for _, t := range in.Tasks {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	} else {
		b.WriteString("The user gave no tasks; propose a gentle plan from their history.\n")
	}
	b.WriteString("Check the cognitive profile and history first. Save the plan with save_daily_plan and include the returned plan_id as planId.")
	return crew.Task{
		Name:           "daily_plan",
		Description:    b.String(),
		ExpectedOutput: "JSON with planId, tasks (index, title, description, durationMinutes, timeSlot, category, rationale, priority, status) and overallRationale.",
		Agent:          p.planner(p.env(in.UserID, in.RunID)),
		Output:         PlanOutput{},
	}
}

// BrainStateStrategy describes how a plan is shaped for a brain state.
func BrainStateStrategy(state string) string {
	switch state {
	case domain.BrainFoggy:
		return "open with one small low-friction task, keep blocks to 15-25 minutes, defer demanding work and add movement breaks."
	case domain.BrainWired:
		return "channel the energy into short varied blocks of 20-30 minutes, alternate task types and include something physical."
	default:
		return "front-load the most demanding task in 45-90 minute deep-work blocks with short breaks between them."
	}
}

// UsableMinutes keeps a 20% buffer out of a time window.
func UsableMinutes(window int) int {
	return window * 4 / 5
}

// NormalizeTasks renumbers tasks in order and defaults their status to pending.
func NormalizeTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		t.Index = i
		if t.Status == "" {
			t.Status = "pending"
		}
		out[i] = t
	}
	return out
}
