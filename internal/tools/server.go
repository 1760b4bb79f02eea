package tools

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewServer exposes every record store tool over MCP. Tools take user_id
// from their arguments unless env is bound to a user.
func NewServer(env Env, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"attune",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Attune record store tools: read a user's cognitive profile, history and plans, and save plans, interventions and profiles."),
	)
	profile := GetCognitiveProfile{Env: env}
	s.AddTool(profile.Definition(), profile.Handle)
	history := GetUserHistory{Env: env}
	s.AddTool(history.Definition(), history.Handle)
	current := GetCurrentPlan{Env: env}
	s.AddTool(current.Definition(), current.Handle)
	savePlan := SaveDailyPlan{Env: env}
	s.AddTool(savePlan.Definition(), savePlan.Handle)
	saveIntervention := SaveIntervention{Env: env}
	s.AddTool(saveIntervention.Definition(), saveIntervention.Handle)
	saveProfile := SaveProfile{Env: env}
	s.AddTool(saveProfile.Definition(), saveProfile.Handle)
	score := ScoreASRSTool{}
	s.AddTool(score.Definition(), score.Handle)
	return s
}
