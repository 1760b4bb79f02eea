package server

import (
	"attune/internal/agents"
	"attune/internal/dashboard"
	"attune/internal/domain"
)

// Request payloads

type PlanRequest struct {
	BrainState        string   `json:"brainState" enum:"foggy,focused,wired"`
	Tasks             []string `json:"tasks,omitempty"`
	TimeWindowMinutes *int     `json:"timeWindowMinutes,omitempty" minimum:"15" maximum:"480"`
}

type InterventionRequest struct {
	PlanID         string  `json:"planId"`
	StuckTaskIndex int     `json:"stuckTaskIndex" minimum:"0"`
	UserMessage    *string `json:"userMessage,omitempty"`
}

type ScreeningRequest struct {
	Answers []int   `json:"answers" minItems:"6" maxItems:"6"`
	Notes   *string `json:"notes,omitempty"`
}

type CheckinRequest struct {
	Date           string  `json:"date,omitempty" format:"date" doc:"Defaults to today (UTC)."`
	MoodScore      int     `json:"moodScore" minimum:"0" maximum:"10"`
	EnergyLevel    int     `json:"energyLevel" minimum:"0" maximum:"10"`
	TasksCompleted int     `json:"tasksCompleted" minimum:"0"`
	TasksTotal     int     `json:"tasksTotal" minimum:"0"`
	Notes          *string `json:"notes,omitempty"`
}

type TestResultRequest struct {
	UserID         string         `json:"userId"`
	TestType       string         `json:"testType" enum:"asrs,time_perception,reaction_time"`
	Score          int            `json:"score"`
	RawData        map[string]any `json:"rawData"`
	Metrics        map[string]any `json:"metrics"`
	Label          string         `json:"label"`
	Interpretation string         `json:"interpretation"`
}

type FeedbackRequest struct {
	Rating   int     `json:"rating" minimum:"1" maximum:"5"`
	Feedback *string `json:"feedback,omitempty"`
}

// Response payloads

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type GuestResponse struct {
	Token      string      `json:"token"`
	UserID     string      `json:"userId"`
	User       domain.User `json:"user"`
	HasProfile bool        `json:"hasProfile"`
}

type SaveTestResponse struct {
	TestID string `json:"testId"`
	Status string `json:"status" example:"saved"`
}

type TestResultsResponse struct {
	Tests []domain.TestResult `json:"tests"`
}

type PatternResponse struct {
	Cards []domain.HypothesisCard `json:"cards"`
}

type JournalResponse struct {
	Items []domain.Event `json:"items"`
}

type PlanResponse = agents.PlanOutput

type InterventionResponse = agents.InterventionOutput

type DashboardResponse = dashboard.Dashboard
