package domain

// Brain states accepted by plan generation.
const (
	BrainFoggy   = "foggy"
	BrainFocused = "focused"
	BrainWired   = "wired"
)

// Hypothesis confidence and status values.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"

	HypothesisActive    = "active"
	HypothesisConfirmed = "confirmed"
	HypothesisDisproved = "disproved"
	HypothesisEvolving  = "evolving"
)

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	IsGuest   bool   `json:"isGuest"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type Profile struct {
	ID                  string   `json:"profileId,omitempty"`
	UserID              string   `json:"userId,omitempty"`
	ASRSTotalScore      int      `json:"asrsTotalScore" validate:"gte=0,lte=24"`
	IsPositiveScreen    bool     `json:"isPositiveScreen"`
	AttentionRegulation int      `json:"attentionRegulation" validate:"gte=0,lte=100"`
	TimePerception      int      `json:"timePerception" validate:"gte=0,lte=100"`
	EmotionalIntensity  int      `json:"emotionalIntensity" validate:"gte=0,lte=100"`
	WorkingMemory       int      `json:"workingMemory" validate:"gte=0,lte=100"`
	TaskInitiation      int      `json:"taskInitiation" validate:"gte=0,lte=100"`
	HyperfocusCapacity  int      `json:"hyperfocusCapacity" validate:"gte=0,lte=100"`
	Strengths           []string `json:"strengths"`
	Challenges          []string `json:"challenges"`
	Summary             string   `json:"summary"`
	// Dimensions are the six radar dimensions, each with an insight sentence.
	Dimensions  []Dimension `json:"dimensions" validate:"dive"`
	ProfileTags []string    `json:"profileTags"`
	CreatedAt   string      `json:"createdAt,omitempty" format:"date-time"`
}

// Dimension is one axis of the cognitive radar. Value is 0-100; higher means more of the trait.
type Dimension struct {
	Key     string `json:"key" validate:"required"`
	Label   string `json:"label"`
	Value   int    `json:"value" validate:"gte=0,lte=100"`
	Insight string `json:"insight"`
}

// Cognitive test types.
const (
	TestASRS           = "asrs"
	TestTimePerception = "time_perception"
	TestReactionTime   = "reaction_time"
)

// TestResult is one completed cognitive test.
type TestResult struct {
	ID             string         `json:"testId"`
	UserID         string         `json:"userId"`
	TestType       string         `json:"testType" enum:"asrs,time_perception,reaction_time"`
	Score          int            `json:"score"`
	RawData        map[string]any `json:"rawData"`
	Metrics        map[string]any `json:"metrics"`
	Label          string         `json:"label"`
	Interpretation string         `json:"interpretation"`
	CompletedAt    string         `json:"completedAt" format:"date-time"`
}

// Task is one entry of a daily plan.
type Task struct {
	Index           int    `json:"index" validate:"gte=0"`
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"durationMinutes" validate:"gte=0"`
	TimeSlot        string `json:"timeSlot"`
	Category        string `json:"category"`
	Rationale       string `json:"rationale"`
	Priority        string `json:"priority"`
	Status          string `json:"status"`
}

type Plan struct {
	ID                string `json:"planId"`
	UserID            string `json:"userId"`
	PlanDate          string `json:"planDate" format:"date"`
	BrainState        string `json:"brainState" enum:"foggy,focused,wired"`
	TimeWindowMinutes *int   `json:"timeWindowMinutes,omitempty"`
	Tasks             []Task `json:"tasks"`
	OverallRationale  string `json:"overallRationale"`
	CreatedAt         string `json:"createdAt" format:"date-time"`
}

type Intervention struct {
	ID                string  `json:"interventionId"`
	UserID            string  `json:"userId"`
	PlanID            string  `json:"planId,omitempty"`
	StuckTaskIndex    int     `json:"stuckTaskIndex"`
	UserMessage       *string `json:"userMessage,omitempty"`
	Acknowledgment    string  `json:"acknowledgment"`
	OriginalTasks     []Task  `json:"originalTasks"`
	RestructuredTasks []Task  `json:"restructuredTasks"`
	AgentReasoning    string  `json:"agentReasoning"`
	FollowupHint      *string `json:"followupHint,omitempty"`
	Rating            *int    `json:"rating,omitempty"`
	Feedback          *string `json:"feedback,omitempty"`
	CreatedAt         string  `json:"createdAt" format:"date-time"`
}

type Checkin struct {
	ID             string  `json:"id,omitempty"`
	UserID         string  `json:"userId,omitempty"`
	Date           string  `json:"date" format:"date"`
	MoodScore      int     `json:"moodScore" minimum:"0" maximum:"10"`
	EnergyLevel    int     `json:"energyLevel" minimum:"0" maximum:"10"`
	TasksCompleted int     `json:"tasksCompleted" minimum:"0"`
	TasksTotal     int     `json:"tasksTotal" minimum:"0"`
	Notes          *string `json:"notes,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty" format:"date-time"`
}

// CompletionRate is the share of completed tasks on a 0-100 scale. A day
// with no tasks counts as zero.
func (c Checkin) CompletionRate() float64 {
	total := c.TasksTotal
	if total <= 0 {
		total = 1
	}
	return float64(c.TasksCompleted) / float64(total) * 100
}

type Evidence struct {
	Day    int    `json:"day"`
	Detail string `json:"detail" validate:"required"`
}

type HypothesisCard struct {
	ID                 string     `json:"id,omitempty"`
	UserID             string     `json:"userId,omitempty"`
	PatternDetected    string     `json:"patternDetected" validate:"required"`
	Prediction         string     `json:"prediction" validate:"required"`
	Confidence         string     `json:"confidence" enum:"low,medium,high" validate:"oneof=low medium high"`
	SupportingEvidence []Evidence `json:"supportingEvidence" validate:"dive"`
	Status             string     `json:"status" enum:"active,confirmed,disproved,evolving" validate:"omitempty,oneof=active confirmed disproved evolving"`
	AnnotationDay      *int       `json:"annotationDay,omitempty"`
	AgentAnnotation    *string    `json:"agentAnnotation,omitempty"`
	CreatedAt          string     `json:"createdAt,omitempty" format:"date-time"`
}

// Event is one persisted pipeline journal entry.
type Event struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts" format:"date-time"`
	Type     string         `json:"type"`
	UserID   string         `json:"userId,omitempty"`
	Pipeline string         `json:"pipeline"`
	RunID    string         `json:"runId"`
	Payload  map[string]any `json:"payload"`
}
