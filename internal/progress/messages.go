package progress

import "attune/internal/agent"

// Phase is a point in an agent's lifecycle that has a user-facing message.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseComplete
)

const completeFallback = "Processing complete"

// AgentMessage returns the status line for a role entering phase. Unknown
// roles get a generic line built from the role name.
func AgentMessage(role agent.Role, phase Phase) string {
	if phase == PhaseComplete {
		switch role {
		case agent.RolePlanner:
			return "Plan ready!"
		case agent.RoleIntervention:
			return "New plan ready!"
		case agent.RoleScreening:
			return "Profile ready!"
		case agent.RoleManager:
			return "Coordination complete!"
		case agent.RolePattern:
			return "Patterns detected!"
		default:
			return completeFallback
		}
	}
	switch role {
	case agent.RolePlanner:
		return "Analyzing your cognitive profile..."
	case agent.RoleIntervention:
		return "Attune is listening..."
	case agent.RoleScreening:
		return "Reading your responses..."
	case agent.RoleManager:
		return "Coordinating your AI agents..."
	case agent.RolePattern:
		return "Scanning your behavioral data..."
	default:
		return string(role) + " is working..."
	}
}

// ToolMessage returns the status line for a tool invocation.
func ToolMessage(tool agent.ToolName) string {
	switch tool {
	case agent.ToolGetCognitiveProfile:
		return "Checking your cognitive profile..."
	case agent.ToolGetUserHistory:
		return "Reviewing your recent history..."
	case agent.ToolGetCurrentPlan:
		return "Looking at your current plan..."
	case agent.ToolSaveDailyPlan:
		return "Saving your plan..."
	case agent.ToolSaveIntervention:
		return "Recording intervention..."
	case agent.ToolScoreASRS:
		return "Scoring your assessment..."
	case agent.ToolSaveProfile:
		return "Saving your profile..."
	default:
		return "Using " + string(tool) + "..."
	}
}
