package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"attune/internal/agent"
	"attune/internal/crew"
	"attune/internal/domain"
	"attune/internal/resolve"
	"attune/internal/retry"
)

type InterventionInput struct {
	UserID         string
	// RunID ties the save tool to one pipeline run.
	RunID          string
	Plan           domain.Plan
	StuckTaskIndex int
	UserMessage    *string
}

type InterventionOutput struct {
	InterventionID    string        `json:"interventionId,omitempty"`
	Acknowledgment    string        `json:"acknowledgment" validate:"required"`
	RestructuredTasks []domain.Task `json:"restructuredTasks" validate:"required,dive"`
	AgentReasoning    string        `json:"agentReasoning"`
	FollowupHint      *string       `json:"followupHint,omitempty"`
}

// Intervene runs the intervention pipeline under retry.
func (p Pipelines) Intervene(ctx context.Context, l crew.Listener, in InterventionInput) (InterventionOutput, error) {
	policy := p.Retry
	policy.Name = "intervention"
	policy.Logger = p.logger()
	return retry.Do(ctx, policy, func(ctx context.Context) (InterventionOutput, error) {
		c := p.crew("intervention", agent.Sequential, l, nil, p.interventionTask(in))
		out, err := c.Kickoff(ctx)
		if err != nil {
			return InterventionOutput{}, err
		}
		res, err := resolve.Resolve[InterventionOutput](resolve.Raw{Object: out.Result.Object, Text: out.Result.Text}).Result()
		if err != nil {
			return InterventionOutput{}, err
		}
		res.RestructuredTasks = NormalizeTasks(res.RestructuredTasks)
		return res, nil
	})
}

func (p Pipelines) interventionTask(in InterventionInput) crew.Task {
	tasks, _ := json.Marshal(in.Plan.Tasks)
	var b strings.Builder
	fmt.Fprintf(&b, "User %s is stuck on task %d of plan %s.\n", in.UserID, in.StuckTaskIndex, in.Plan.ID)
	if in.StuckTaskIndex >= 0 && in.StuckTaskIndex < len(in.Plan.Tasks) {
		fmt.Fprintf(&b, "Stuck task: %q.\n", in.Plan.Tasks[in.StuckTaskIndex].Title)
	}
	if in.UserMessage != nil && *in.UserMessage != "" {
		fmt.Fprintf(&b, "They said: %q\n", *in.UserMessage)
	}
	fmt.Fprintf(&b, "Brain state when planning: %s.\nCurrent tasks: %s\n", in.Plan.BrainState, tasks)
	b.WriteString("Acknowledge how they feel, break the stuck task into a first step under five minutes and restructure the remaining tasks. " +
		"Save the result with save_intervention and include the returned intervention_id as interventionId.")
	return crew.Task{
		Name:           "restructure_plan",
		Description:    b.String(),
		ExpectedOutput: "JSON with interventionId, acknowledgment, restructuredTasks, agentReasoning and an optional followupHint.",
		Agent:          p.interventionist(p.env(in.UserID, in.RunID)),
		Output:         InterventionOutput{},
	}
}
