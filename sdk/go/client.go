package attunesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Attune HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	UserID      string
	// HasProfile is set by Guest.
	HasProfile  bool
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. Pipeline calls can take minutes,
// so the default timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Timeout:  5 * time.Minute,
	}
}

// Task is one entry of a plan.
type Task struct {
	Index           int    `json:"index"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"durationMinutes"`
	TimeSlot        string `json:"timeSlot"`
	Category        string `json:"category"`
	Rationale       string `json:"rationale"`
	Priority        string `json:"priority"`
	Status          string `json:"status"`
}

type Plan struct {
	PlanID           string `json:"planId"`
	Tasks            []Task `json:"tasks"`
	OverallRationale string `json:"overallRationale"`
}

type Intervention struct {
	InterventionID    string  `json:"interventionId"`
	Acknowledgment    string  `json:"acknowledgment"`
	RestructuredTasks []Task  `json:"restructuredTasks"`
	AgentReasoning    string  `json:"agentReasoning"`
	FollowupHint      *string `json:"followupHint,omitempty"`
	Rating            *int    `json:"rating,omitempty"`
}

type Profile struct {
	ProfileID           string      `json:"profileId"`
	ASRSTotalScore      int         `json:"asrsTotalScore"`
	IsPositiveScreen    bool        `json:"isPositiveScreen"`
	AttentionRegulation int         `json:"attentionRegulation"`
	TimePerception      int         `json:"timePerception"`
	EmotionalIntensity  int         `json:"emotionalIntensity"`
	WorkingMemory       int         `json:"workingMemory"`
	TaskInitiation      int         `json:"taskInitiation"`
	HyperfocusCapacity  int         `json:"hyperfocusCapacity"`
	Dimensions          []Dimension `json:"dimensions"`
	Strengths           []string    `json:"strengths"`
	Challenges          []string    `json:"challenges"`
	ProfileTags         []string    `json:"profileTags"`
	Summary             string      `json:"summary"`
}

// Dimension is one axis of the profile radar, valued 0 to 100.
type Dimension struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Value   int    `json:"value"`
	Insight string `json:"insight"`
}

// TestResult is a completed cognitive test.
type TestResult struct {
	TestID         string         `json:"testId,omitempty"`
	TestType       string         `json:"testType"`
	Score          int            `json:"score"`
	RawData        map[string]any `json:"rawData"`
	Metrics        map[string]any `json:"metrics"`
	Label          string         `json:"label"`
	Interpretation string         `json:"interpretation"`
	CompletedAt    string         `json:"completedAt,omitempty"`
}

type Checkin struct {
	Date           string  `json:"date,omitempty"`
	MoodScore      int     `json:"moodScore"`
	EnergyLevel    int     `json:"energyLevel"`
	TasksCompleted int     `json:"tasksCompleted"`
	TasksTotal     int     `json:"tasksTotal"`
	Notes          *string `json:"notes,omitempty"`
}

type Evidence struct {
	Day    int    `json:"day"`
	Detail string `json:"detail"`
}

type HypothesisCard struct {
	PatternDetected    string     `json:"patternDetected"`
	Prediction         string     `json:"prediction"`
	Confidence         string     `json:"confidence"`
	SupportingEvidence []Evidence `json:"supportingEvidence"`
	Status             string     `json:"status"`
}

// Dashboard represents the dashboard response (partial).
type Dashboard struct {
	Trend []struct {
		Day            int    `json:"day"`
		Date           string `json:"date"`
		MoodScore      int    `json:"moodScore"`
		CompletionRate int    `json:"completionRate"`
		EnergyLevel    int    `json:"energyLevel"`
	} `json:"trend"`
	Momentum struct {
		Score int `json:"score"`
		Delta int `json:"delta"`
	} `json:"momentum"`
	Hypotheses  []HypothesisCard `json:"hypotheses"`
	Annotations []struct {
		Day  int    `json:"day"`
		Kind string `json:"kind"`
		Text string `json:"text"`
	} `json:"annotations"`
}

// JournalEntry is one pipeline journal record.
type JournalEntry struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts"`
	Type     string         `json:"type"`
	Pipeline string         `json:"pipeline"`
	RunID    string         `json:"runId"`
	Payload  map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Guest signs in as the demo user and keeps the token for later calls.
func (c *Client) Guest(ctx context.Context) error {
	var resp struct {
		Token      string `json:"token"`
		UserID     string `json:"userId"`
		HasProfile bool   `json:"hasProfile"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/guest", nil, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	c.UserID = resp.UserID
	c.HasProfile = resp.HasProfile
	return nil
}

// GeneratePlan asks for today's plan. timeWindow of 0 leaves it unset.
func (c *Client) GeneratePlan(ctx context.Context, brainState string, tasks []string, timeWindow int) (Plan, error) {
	body := map[string]any{"brainState": brainState}
	if len(tasks) > 0 {
		body["tasks"] = tasks
	}
	if timeWindow > 0 {
		body["timeWindowMinutes"] = timeWindow
	}
	var resp Plan
	err := c.do(ctx, http.MethodPost, "plan/generate", body, &resp)
	return resp, err
}

// Intervene reports being stuck on a task of a plan.
func (c *Client) Intervene(ctx context.Context, planID string, stuckTaskIndex int, message string) (Intervention, error) {
	body := map[string]any{"planId": planID, "stuckTaskIndex": stuckTaskIndex}
	if message != "" {
		body["userMessage"] = message
	}
	var resp Intervention
	err := c.do(ctx, http.MethodPost, "plan/intervene", body, &resp)
	return resp, err
}

// RateIntervention sends a 1-5 rating with optional feedback.
func (c *Client) RateIntervention(ctx context.Context, interventionID string, rating int, feedback string) (Intervention, error) {
	body := map[string]any{"rating": rating}
	if feedback != "" {
		body["feedback"] = feedback
	}
	var resp Intervention
	endpoint := fmt.Sprintf("interventions/%s/feedback", url.PathEscape(interventionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// EvaluateScreening submits the six ASRS Part A answers.
func (c *Client) EvaluateScreening(ctx context.Context, answers []int, notes string) (Profile, error) {
	body := map[string]any{"answers": answers}
	if notes != "" {
		body["notes"] = notes
	}
	var resp Profile
	err := c.do(ctx, http.MethodPost, "screening/evaluate", body, &resp)
	return resp, err
}

func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "profile/"+url.PathEscape(c.UserID), nil, &resp)
	return resp, err
}

func (c *Client) Checkin(ctx context.Context, in Checkin) (Checkin, error) {
	var resp Checkin
	err := c.do(ctx, http.MethodPost, "checkins", in, &resp)
	return resp, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard/"+url.PathEscape(c.UserID), nil, &resp)
	return resp, err
}

// DetectPatterns returns no cards until a week of checkins exists.
func (c *Client) DetectPatterns(ctx context.Context) ([]HypothesisCard, error) {
	var resp struct {
		Cards []HypothesisCard `json:"cards"`
	}
	err := c.do(ctx, http.MethodPost, "patterns/detect", nil, &resp)
	return resp.Cards, err
}

// SaveTestResult stores a cognitive test for the signed-in user and returns its id.
func (c *Client) SaveTestResult(ctx context.Context, in TestResult) (string, error) {
	if in.RawData == nil {
		in.RawData = map[string]any{}
	}
	if in.Metrics == nil {
		in.Metrics = map[string]any{}
	}
	body := map[string]any{
		"userId":         c.UserID,
		"testType":       in.TestType,
		"score":          in.Score,
		"rawData":        in.RawData,
		"metrics":        in.Metrics,
		"label":          in.Label,
		"interpretation": in.Interpretation,
	}
	var resp struct {
		TestID string `json:"testId"`
	}
	err := c.do(ctx, http.MethodPost, "cognitive-tests/save", body, &resp)
	return resp.TestID, err
}

// TestResults returns the latest result of each test type.
func (c *Client) TestResults(ctx context.Context) ([]TestResult, error) {
	var resp struct {
		Tests []TestResult `json:"tests"`
	}
	err := c.do(ctx, http.MethodGet, "cognitive-tests/"+url.PathEscape(c.UserID), nil, &resp)
	return resp.Tests, err
}

func (c *Client) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	endpoint := "journal/" + url.PathEscape(c.UserID)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []JournalEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.api() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) api() string {
	return c.base() + "/" + strings.Trim(c.BasePath, "/")
}
