package engine

import (
	"context"
	"fmt"
	"time"

	"attune/internal/agent"
	"attune/internal/agents"
	"attune/internal/domain"
	"attune/internal/events"
	"attune/internal/tools"
)

// Plan time window bounds in minutes.
const (
	MinTimeWindow = 15
	MaxTimeWindow = 480
)

type PlanRequest struct {
	BrainState        string
	Tasks             []string
	TimeWindowMinutes *int
}

// GeneratePlan runs orchestrated planning with a fallback to the planning
// specialist alone. The returned plan is always persisted.
func (e Engine) GeneratePlan(ctx context.Context, userID string, req PlanRequest) (agents.PlanOutput, error) {
	switch req.BrainState {
	case domain.BrainFoggy, domain.BrainFocused, domain.BrainWired:
	default:
		return agents.PlanOutput{}, invalid("brainState must be foggy, focused or wired")
	}
	if w := req.TimeWindowMinutes; w != nil && (*w < MinTimeWindow || *w > MaxTimeWindow) {
		return agents.PlanOutput{}, invalid("timeWindowMinutes must be between %d and %d", MinTimeWindow, MaxTimeWindow)
	}
	if err := e.ensureUser(ctx, userID); err != nil {
		return agents.PlanOutput{}, err
	}
	var out agents.PlanOutput
	err := e.run(ctx, "plan", userID, func(ctx context.Context, j *journal) (string, error) {
		in := agents.PlanInput{UserID: userID, RunID: j.runID, BrainState: req.BrainState, Tasks: req.Tasks, TimeWindowMinutes: req.TimeWindowMinutes}
		l := e.emitter(userID)
		planner := agents.Planner{
			Orchestrated: e.Pipelines.OrchestratedPlan(l),
			Direct:       e.Pipelines.DirectPlan(l),
			Retry:        j.retry(ctx),
			Logger:       e.logger(),
			OnFallback: func(err error) {
				j.append(ctx, events.TypeRunFallback, events.EventPayload{"error": err.Error()})
			},
		}
		res, err := planner.Plan(ctx, in)
		if err != nil {
			return agent.Sequential.String(), err
		}
		out, err = e.persistPlan(ctx, in, res.Output)
		return res.Path.String(), err
	})
	if err != nil {
		return agents.PlanOutput{}, err
	}
	return out, nil
}

// persistPlan writes the plan as the run's one plan record, replacing whatever
// an attempt of this run saved through the tool.
func (e Engine) persistPlan(ctx context.Context, in agents.PlanInput, out agents.PlanOutput) (agents.PlanOutput, error) {
	now := e.now().UTC()
	plan := domain.Plan{
		ID:                e.recordID(in.RunID, tools.RecordPlan),
		UserID:            in.UserID,
		PlanDate:          now.Format(time.DateOnly),
		BrainState:        in.BrainState,
		TimeWindowMinutes: in.TimeWindowMinutes,
		Tasks:             out.Tasks,
		OverallRationale:  out.OverallRationale,
		CreatedAt:         now.Format(time.RFC3339),
	}
	if err := e.Repo.SavePlan(ctx, plan); err != nil {
		return out, fmt.Errorf("save plan: %w", err)
	}
	out.PlanID = plan.ID
	return out, nil
}

type InterventionRequest struct {
	PlanID         string
	StuckTaskIndex int
	UserMessage    *string
}

// Intervene restructures a plan the user is stuck on.
func (e Engine) Intervene(ctx context.Context, userID string, req InterventionRequest) (agents.InterventionOutput, error) {
	if req.PlanID == "" {
		return agents.InterventionOutput{}, invalid("planId required")
	}
	plan, err := e.Repo.GetPlan(ctx, req.PlanID)
	if err != nil {
		return agents.InterventionOutput{}, fmt.Errorf("plan %s: %w", req.PlanID, err)
	}
	if plan.UserID != userID {
		return agents.InterventionOutput{}, fmt.Errorf("%w: plan %s belongs to another user", ErrForbidden, req.PlanID)
	}
	if req.StuckTaskIndex < 0 || req.StuckTaskIndex >= len(plan.Tasks) {
		return agents.InterventionOutput{}, invalid("stuckTaskIndex %d out of range", req.StuckTaskIndex)
	}
	var out agents.InterventionOutput
	err = e.run(ctx, "intervention", userID, func(ctx context.Context, j *journal) (string, error) {
		in := agents.InterventionInput{UserID: userID, RunID: j.runID, Plan: plan, StuckTaskIndex: req.StuckTaskIndex, UserMessage: req.UserMessage}
		pl := e.Pipelines
		pl.Retry = j.retry(ctx)
		res, err := pl.Intervene(ctx, e.emitter(userID), in)
		if err != nil {
			return agent.Sequential.String(), err
		}
		out, err = e.persistIntervention(ctx, in, res)
		return agent.Sequential.String(), err
	})
	if err != nil {
		return agents.InterventionOutput{}, err
	}
	return out, nil
}

// persistIntervention writes the run's one intervention record. A retried
// attempt that already saved through the tool is replaced, not duplicated.
func (e Engine) persistIntervention(ctx context.Context, in agents.InterventionInput, out agents.InterventionOutput) (agents.InterventionOutput, error) {
	iv := domain.Intervention{
		ID:                e.recordID(in.RunID, tools.RecordIntervention),
		UserID:            in.UserID,
		PlanID:            in.Plan.ID,
		StuckTaskIndex:    in.StuckTaskIndex,
		UserMessage:       in.UserMessage,
		Acknowledgment:    out.Acknowledgment,
		OriginalTasks:     in.Plan.Tasks,
		RestructuredTasks: out.RestructuredTasks,
		AgentReasoning:    out.AgentReasoning,
		FollowupHint:      out.FollowupHint,
		CreatedAt:         e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.SaveIntervention(ctx, iv); err != nil {
		return out, fmt.Errorf("save intervention: %w", err)
	}
	out.InterventionID = iv.ID
	return out, nil
}

type ScreeningRequest struct {
	Answers []int
	Notes   *string
}

// Screen evaluates ASRS answers into a cognitive profile. It is not retried.
func (e Engine) Screen(ctx context.Context, userID string, req ScreeningRequest) (domain.Profile, error) {
	if _, err := tools.ScoreASRS(req.Answers); err != nil {
		return domain.Profile{}, invalid("%v", err)
	}
	if err := e.ensureUser(ctx, userID); err != nil {
		return domain.Profile{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertASRSResponse(ctx, e.newID(), userID, req.Answers, req.Notes, now); err != nil {
		return domain.Profile{}, fmt.Errorf("save asrs response: %w", err)
	}

	var profile domain.Profile
	err := e.run(ctx, "screening", userID, func(ctx context.Context, j *journal) (string, error) {
		in := agents.ScreeningInput{UserID: userID, RunID: j.runID, Answers: req.Answers, Notes: req.Notes}
		p, err := e.Pipelines.Screen(ctx, e.emitter(userID), in)
		if err != nil {
			return agent.Sequential.String(), err
		}
		profile, err = e.persistProfile(ctx, in, p)
		return agent.Sequential.String(), err
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

// persistProfile writes the scored profile as the run's one profile record,
// so a profile the agent saved with different scores is corrected in place.
func (e Engine) persistProfile(ctx context.Context, in agents.ScreeningInput, p domain.Profile) (domain.Profile, error) {
	p.ID = e.recordID(in.RunID, tools.RecordProfile)
	p.UserID = in.UserID
	p.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SaveProfile(ctx, p); err != nil {
		return p, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// DetectPatterns looks for behavioral patterns once a week of checkins exists
// and stores every card it finds.
func (e Engine) DetectPatterns(ctx context.Context, userID string) (agents.PatternOutput, error) {
	n, err := e.Repo.CountCheckins(ctx, userID)
	if err != nil {
		return agents.PatternOutput{}, err
	}
	if n < agents.MinPatternDays {
		return agents.PatternOutput{Cards: []domain.HypothesisCard{}}, nil
	}

	var out agents.PatternOutput
	err = e.run(ctx, "patterns", userID, func(ctx context.Context, j *journal) (string, error) {
		res, err := e.Pipelines.DetectPatterns(ctx, e.emitter(userID), userID, n)
		if err != nil {
			return agent.Sequential.String(), err
		}
		now := e.now().UTC().Format(time.RFC3339)
		for i := range res.Cards {
			c := &res.Cards[i]
			c.ID = e.newID()
			c.UserID = userID
			c.CreatedAt = now
			if err := e.Repo.InsertHypothesis(ctx, *c); err != nil {
				return agent.Sequential.String(), fmt.Errorf("save hypothesis: %w", err)
			}
		}
		out = res
		return agent.Sequential.String(), nil
	})
	if err != nil {
		return agents.PatternOutput{}, err
	}
	return out, nil
}
