package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/db"
	"attune/internal/domain"
	"attune/internal/migrate"
	"attune/internal/repo"
)

func newEnv(t *testing.T) Env {
	t.Helper()
	conn, err := db.Open(db.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	require.NoError(t, r.EnsureUser(context.Background(), domain.User{ID: "u1", Name: "Alex", CreatedAt: "2024-01-01T00:00:00Z"}))
	n := 0
	return Env{
		Repo:   r,
		UserID: "u1",
		Now:    func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return "id-" + string(rune('0'+n))
		},
	}
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestScoreASRS(t *testing.T) {
	score, err := ScoreASRS([]int{4, 3, 2, 2, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, 15, score.TotalScore)
	assert.True(t, score.IsPositiveScreen)
	assert.Equal(t, 88, score.Dimensions["attention_regulation"])
	assert.Equal(t, 50, score.Dimensions["time_perception"])
	assert.Equal(t, 50, score.Dimensions["emotional_intensity"])
	assert.Equal(t, 75, score.Dimensions["working_memory"])
	assert.Equal(t, 38, score.Dimensions["task_initiation"])
	assert.Equal(t, 75, score.Dimensions["hyperfocus_capacity"])

	low, err := ScoreASRS([]int{2, 2, 2, 2, 2, 3})
	require.NoError(t, err)
	assert.False(t, low.IsPositiveScreen)

	_, err = ScoreASRS([]int{1, 2})
	assert.Error(t, err)
	_, err = ScoreASRS([]int{5, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestScoreToolAcceptsArrayArgument(t *testing.T) {
	res, err := ScoreASRSTool{}.Handle(context.Background(), call(map[string]any{"answers": []any{4.0, 4.0, 4.0, 4.0, 4.0, 4.0}}))
	require.NoError(t, err)
	var score ASRSScore
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &score))
	assert.Equal(t, 24, score.TotalScore)

	res, err = ScoreASRSTool{}.Handle(context.Background(), call(map[string]any{"answers": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSavePlanThenInterveneUsesBoundUser(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	res, err := SaveDailyPlan{Env: env}.Handle(ctx, call(map[string]any{
		"user_id":             "someone-else",
		"brain_state":         "foggy",
		"tasks_json":          `[{"index":0,"title":"Email","durationMinutes":15}]`,
		"overall_rationale":   "start small",
		"time_window_minutes": 90.0,
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"plan_id":"id-1"}`, text(t, res))

	plan, err := env.Repo.GetPlan(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", plan.UserID)
	assert.Equal(t, "2024-03-05", plan.PlanDate)
	require.NotNil(t, plan.TimeWindowMinutes)
	assert.Equal(t, 90, *plan.TimeWindowMinutes)

	res, err = SaveIntervention{Env: env}.Handle(ctx, call(map[string]any{
		"plan_id":                 "id-1",
		"stuck_task_index":        0.0,
		"acknowledgment":          "That's hard.",
		"restructured_tasks_json": `[{"index":0,"title":"Open inbox","durationMinutes":5}]`,
		"agent_reasoning":         "smaller first step",
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"intervention_id":"id-2"}`, text(t, res))
	iv, err := env.Repo.GetIntervention(ctx, "id-2")
	require.NoError(t, err)
	assert.Equal(t, "Email", iv.OriginalTasks[0].Title)
	assert.Equal(t, "Open inbox", iv.RestructuredTasks[0].Title)
}

func TestSaveInterventionRejectsUnknownPlan(t *testing.T) {
	env := newEnv(t)
	res, err := SaveIntervention{Env: env}.Handle(context.Background(), call(map[string]any{
		"plan_id": "missing", "restructured_tasks_json": `[]`,
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHistoryAndProfileReads(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	res, err := GetCognitiveProfile{Env: env}.Handle(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"profile":null`)

	_, err = SaveProfile{Env: env}.Handle(ctx, call(map[string]any{"profile_json": `{"asrsTotalScore":16,"isPositiveScreen":true,"summary":"curious"}`}))
	require.NoError(t, err)
	res, err = GetCognitiveProfile{Env: env}.Handle(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"summary":"curious"`)

	require.NoError(t, env.Repo.UpsertCheckin(ctx, domain.Checkin{ID: "c1", UserID: "u1", Date: "2024-03-04", MoodScore: 6, TasksTotal: 3, CreatedAt: "2024-03-04T20:00:00Z"}))
	res, err = GetUserHistory{Env: env}.Handle(ctx, call(nil))
	require.NoError(t, err)
	var history map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &history))
	assert.True(t, strings.Contains(string(history["checkins"]), "2024-03-04"))
	assert.JSONEq(t, `[]`, string(history["plans"]))
}

func TestUnboundEnvRequiresUserID(t *testing.T) {
	env := newEnv(t)
	env.UserID = ""
	res, err := GetCurrentPlan{Env: env}.Handle(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(newEnv(t), "test")
	assert.NotNil(t, s)
}

func TestRunBoundSaveReplacesEarlierAttempt(t *testing.T) {
	env := newEnv(t)
	env.RunID = "run-1"
	ctx := context.Background()
	id := RecordID("run-1", RecordPlan)

	for _, title := range []string{"Email", "Walk"} {
		res, err := SaveDailyPlan{Env: env}.Handle(ctx, call(map[string]any{
			"brain_state": "focused",
			"tasks_json":  `[{"index":0,"title":"` + title + `"}]`,
		}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"plan_id":"`+id+`"}`, text(t, res))
	}
	plans, err := env.Repo.ListPlans(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Walk", plans[0].Tasks[0].Title)

	assert.NotEqual(t, id, RecordID("run-2", RecordPlan))
	assert.NotEqual(t, id, RecordID("run-1", RecordIntervention))
}

func TestRadarKeepsDisplayOrder(t *testing.T) {
	score, err := ScoreASRS([]int{4, 3, 2, 2, 1, 3})
	require.NoError(t, err)
	radar := score.Radar()
	require.Len(t, radar, 6)
	assert.Equal(t, "attention_regulation", radar[0].Key)
	assert.Equal(t, "Attention Regulation", radar[0].Label)
	assert.Equal(t, 88, radar[0].Value)
	assert.Equal(t, "hyperfocus_capacity", radar[5].Key)
	assert.Empty(t, radar[5].Insight)
}
