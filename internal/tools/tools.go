// Package tools exposes record store reads and writes as MCP tools for agents.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"attune/internal/agent"
	"attune/internal/domain"
	"attune/internal/repo"
)

// Env is shared by all tools. When UserID is set every tool acts for that user
// and ignores the user_id argument. When RunID is set the save tools write the
// run's one record of each kind, so a retried attempt replaces what an earlier
// attempt saved.
type Env struct {
	Repo   repo.Repo
	UserID string
	RunID  string
	Now    func() time.Time
	NewID  func() string
}

// Record kinds written by the save tools.
const (
	RecordPlan         = "plan"
	RecordIntervention = "intervention"
	RecordProfile      = "profile"
)

// RecordID is the id of the record of the given kind owned by a pipeline run.
func RecordID(runID, kind string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("attune:run:"+runID+":"+kind)).String()
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e Env) newID() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}

func (e Env) recordID(kind string) string {
	if e.RunID != "" {
		return RecordID(e.RunID, kind)
	}
	return e.newID()
}

func (e Env) user(req mcp.CallToolRequest) (string, error) {
	if e.UserID != "" {
		return e.UserID, nil
	}
	id := req.GetString("user_id", "")
	if id == "" {
		return "", errors.New("user_id is required")
	}
	return id, nil
}

func userIDParam() mcp.ToolOption {
	return mcp.WithString("user_id", mcp.Description("Id of the user the call is about."))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// GetCognitiveProfile returns the user's latest cognitive profile.
type GetCognitiveProfile struct{ Env Env }

func (t GetCognitiveProfile) Definition() mcp.Tool {
	return mcp.NewTool(string(agent.ToolGetCognitiveProfile),
		mcp.WithDescription("Read the user's most recent cognitive profile: ASRS score, the six radar dimensions with insights, profile tags, strengths and challenges."),
		userIDParam(),
	)
}

func (t GetCognitiveProfile) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := t.Env.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := t.Env.Repo.LatestProfile(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return mcp.NewToolResultText(`{"profile":null,"note":"no screening on record"}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return jsonResult(map[string]any{"profile": p})
}

// GetUserHistory returns recent checkins, plans and interventions.
type GetUserHistory struct {
	Env  Env
	Days int
}

func (t GetUserHistory) Definition() mcp.Tool {
	return mcp.NewTool(string(agent.ToolGetUserHistory),
		mcp.WithDescription("Read the user's recent history: daily checkins, latest plans and interventions."),
		userIDParam(),
	)
}

func (t GetUserHistory) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := t.Env.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	days := t.Days
	if days <= 0 {
		days = 7
	}
	checkins, err := t.Env.Repo.RecentCheckins(ctx, userID, days)
	if err != nil {
		return nil, fmt.Errorf("load checkins: %w", err)
	}
	plans, err := t.Env.Repo.ListPlans(ctx, userID, 3)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	interventions, err := t.Env.Repo.ListInterventions(ctx, userID, 5)
	if err != nil {
		return nil, fmt.Errorf("load interventions: %w", err)
	}
	return jsonResult(map[string]any{
		"checkins":      orEmpty(checkins),
		"plans":         orEmpty(plans),
		"interventions": orEmpty(interventions),
	})
}

// GetCurrentPlan returns the user's latest plan.
type GetCurrentPlan struct{ Env Env }

func (t GetCurrentPlan) Definition() mcp.Tool {
	return mcp.NewTool(string(agent.ToolGetCurrentPlan),
		mcp.WithDescription("Read the user's most recent daily plan with its tasks."),
		userIDParam(),
	)
}

func (t GetCurrentPlan) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := t.Env.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := t.Env.Repo.LatestPlan(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return mcp.NewToolResultText(`{"plan":null}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return jsonResult(map[string]any{"plan": p})
}

// SaveDailyPlan stores a plan and returns its id.
type SaveDailyPlan struct{ Env Env }

func (t SaveDailyPlan) Definition() mcp.Tool {
	return mcp.NewTool(string(agent.ToolSaveDailyPlan),
		mcp.WithDescription("Save a daily plan. Returns the plan_id."),
		userIDParam(),
		mcp.WithString("brain_state", mcp.Required(), mcp.Enum(domain.BrainFoggy, domain.BrainFocused, domain.BrainWired)),
		mcp.WithString("tasks_json", mcp.Required(), mcp.Description("JSON array of tasks with index, title, description, durationMinutes, timeSlot, category, rationale, priority, status.")),
		mcp.WithString("overall_rationale", mcp.Description("Why the plan is shaped this way.")),
		mcp.WithNumber("time_window_minutes", mcp.Description("Available minutes, if the user gave a window.")),
	)
}

func (t SaveDailyPlan) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := t.Env.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var tasks []domain.Task
	if err := json.Unmarshal([]byte(req.GetString("tasks_json", "")), &tasks); err != nil {
		return mcp.NewToolResultError("tasks_json must be a JSON array of tasks: " + err.Error()), nil
	}
	now := t.Env.now()
	plan := domain.Plan{
		ID:               t.Env.recordID(RecordPlan),
		UserID:           userID,
		PlanDate:         now.Format(time.DateOnly),
		BrainState:       req.GetString("brain_state", domain.BrainFocused),
		Tasks:            tasks,
		OverallRationale: req.GetString("overall_rationale", ""),
		CreatedAt:        now.Format(time.RFC3339),
	}
	if w := int(req.GetFloat("time_window_minutes", 0)); w > 0 {
		plan.TimeWindowMinutes = &w
	}
	if err := t.Env.Repo.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	return jsonResult(map[string]string{"plan_id": plan.ID})
}

// SaveIntervention stores a restructuring and returns its id.
type SaveIntervention struct{ Env Env }

func (t SaveIntervention) Definition() mcp.Tool {
	return mcp.NewTool(string(agent.ToolSaveIntervention),
		mcp.WithDescription("Record an intervention for a stuck task. Returns the intervention_id."),
		userIDParam(),
		mcp.WithString("plan_id", mcp.Required()),
		mcp.WithNumber("stuck_task_index", mcp.Required()),
		mcp.WithString("acknowledgment", mcp.Required()),
		mcp.WithString("restructured_tasks_json", mcp.Required(), mcp.Description("JSON array of the restructured tasks.")),
		mcp.WithString("agent_reasoning", mcp.Required()),
		mcp.WithString("user_message"),
	)
}

func (t SaveIntervention) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := t.Env.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var restructured []domain.Task
	if err := json.Unmarshal([]byte(req.GetString("restructured_tasks_json", "")), &restructured); err != nil {
		return mcp.NewToolResultError("restructured_tasks_json must be a JSON array of tasks: " + err.Error()), nil
	}
	planID := req.GetString("plan_id", "")
	plan, err := t.Env.Repo.GetPlan(ctx, planID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && plan.UserID != userID) {
		return mcp.NewToolResultError("plan " + planID + " not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	iv := domain.Intervention{
		ID:                t.Env.recordID(RecordIntervention),
		UserID:            userID,
		PlanID:            planID,
		StuckTaskIndex:    int(req.GetFloat("stuck_task_index", 0)),
		Acknowledgment:    req.GetString("acknowledgment", ""),
		OriginalTasks:     plan.Tasks,
		RestructuredTasks: restructured,
		AgentReasoning:    req.GetString("agent_reasoning", ""),
		CreatedAt:         t.Env.now().Format(time.RFC3339),
	}
	if msg := req.GetString("user_message", ""); msg != "" {
		iv.UserMessage = &msg
	}
	if err := t.Env.Repo.SaveIntervention(ctx, iv); err != nil {
		return nil, fmt.Errorf("save intervention: %w", err)
	}
	return jsonResult(map[string]string{"intervention_id": iv.ID})
}

// SaveProfile stores a cognitive profile and returns its id.
type SaveProfile struct{ Env Env }

func (t SaveProfile) Definition() mcp.Tool {
	return mcp.NewTool(string(agent.ToolSaveProfile),
		mcp.WithDescription("Save the user's cognitive profile. Returns the profile_id."),
		userIDParam(),
		mcp.WithString("profile_json", mcp.Required(), mcp.Description("JSON object with asrsTotalScore, isPositiveScreen, dimensions (key, label, value, insight), profileTags, strengths, challenges and summary.")),
	)
}

func (t SaveProfile) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := t.Env.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(req.GetString("profile_json", "")), &p); err != nil {
		return mcp.NewToolResultError("profile_json must be a JSON object: " + err.Error()), nil
	}
	p.ID = t.Env.recordID(RecordProfile)
	p.UserID = userID
	p.CreatedAt = t.Env.now().Format(time.RFC3339)
	if err := t.Env.Repo.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return jsonResult(map[string]string{"profile_id": p.ID})
}

// ScoreASRSTool scores screening answers.
type ScoreASRSTool struct{}

func (ScoreASRSTool) Definition() mcp.Tool {
	return mcp.NewTool(string(agent.ToolScoreASRS),
		mcp.WithDescription("Score the six ASRS Part A answers (each 0-4). Returns the total, the screen result and six dimension scores 0-100."),
		mcp.WithArray("answers", mcp.Required(), mcp.Items(map[string]any{"type": "integer", "minimum": 0, "maximum": 4})),
	)
}

func (ScoreASRSTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	answers, err := intList(req.GetArguments()["answers"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	score, err := ScoreASRS(answers)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(score)
}

// intList accepts a JSON array of numbers or a string holding one.
func intList(v any) ([]int, error) {
	if s, ok := v.(string); ok {
		var out []int
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("answers must be a list of integers: %w", err)
		}
		return out, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errors.New("answers must be a list of integers")
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("answer %v is not a number", item)
		}
		out = append(out, int(n))
	}
	return out, nil
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
