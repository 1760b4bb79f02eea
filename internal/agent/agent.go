// Package agent names the agent roles and tools the pipelines are built from.
package agent

// Role identifies the agent executing a task.
type Role string

const (
	RoleManager      Role = "Attune Executive Function Manager"
	RolePlanner      Role = "Executive Function Planning Strategist"
	RoleIntervention Role = "ADHD Crisis Response & Plan Restructuring Specialist"
	RoleScreening    Role = "ADHD Cognitive Portrait Specialist"
	RolePattern      Role = "Behavioral Pattern Analyst"
)

// Roles lists every known role.
var Roles = []Role{RoleManager, RolePlanner, RoleIntervention, RoleScreening, RolePattern}

// Known reports whether r is one of the declared roles.
func (r Role) Known() bool {
	for _, k := range Roles {
		if k == r {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// ToolName identifies a tool exposed to the reasoning backend.
type ToolName string

const (
	ToolGetCognitiveProfile ToolName = "get_cognitive_profile"
	ToolGetUserHistory      ToolName = "get_user_history"
	ToolGetCurrentPlan      ToolName = "get_current_plan"
	ToolSaveDailyPlan       ToolName = "save_daily_plan"
	ToolSaveIntervention    ToolName = "save_intervention"
	ToolSaveProfile         ToolName = "save_profile_to_db"
	ToolScoreASRS           ToolName = "score_asrs"
)

// Process is the execution mode of a pipeline.
type Process int

const (
	Sequential Process = iota
	Hierarchical
)

func (p Process) String() string {
	switch p {
	case Hierarchical:
		return "hierarchical"
	default:
		return "sequential"
	}
}
