// Package seed loads the guest user and two weeks of demo history.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"attune/internal/domain"
	"attune/internal/repo"
)

// GuestUserID is the fixed id of the demo account.
const GuestUserID = "00000000-0000-0000-0000-000000000001"

// Days of seeded history.
const Days = 14

var (
	moods     = [Days]int{5, 6, 5, 3, 5, 6, 6, 7, 6, 7, 6, 8, 7, 8}
	energy    = [Days]int{4, 6, 5, 3, 5, 6, 5, 7, 6, 7, 5, 8, 7, 7}
	completed = [Days]int{3, 4, 3, 2, 3, 4, 4, 5, 4, 5, 4, 5, 5, 5}
	totals    = [Days]int{6, 6, 5, 6, 5, 6, 5, 6, 6, 6, 5, 6, 6, 6}
)

// interventionDays are the 1-based days on which the demo user got stuck.
var interventionDays = []int{4, 11}

// Guest ensures the guest user exists with seeded history. Seeding runs only
// when the user has no checkins yet, so calling it again is a no-op.
func Guest(ctx context.Context, r repo.Repo, now time.Time) (domain.User, error) {
	now = now.UTC()
	u := domain.User{
		ID:        GuestUserID,
		Name:      "Guest",
		IsGuest:   true,
		CreatedAt: now.Format(time.RFC3339),
	}
	if err := r.EnsureUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("ensure guest: %w", err)
	}
	stored, err := r.GetUser(ctx, GuestUserID)
	if err != nil {
		return domain.User{}, err
	}
	n, err := r.CountCheckins(ctx, GuestUserID)
	if err != nil {
		return domain.User{}, err
	}
	if n > 0 {
		return stored, nil
	}
	if err := History(ctx, r, GuestUserID, now); err != nil {
		return domain.User{}, err
	}
	return stored, nil
}

// History writes Days checkins ending today, a profile, plans and interventions
// for the stuck days, and two hypothesis cards.
func History(ctx context.Context, r repo.Repo, userID string, now time.Time) error {
	start := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, time.UTC).AddDate(0, 0, -(Days - 1))
	dayAt := func(day int) time.Time { return start.AddDate(0, 0, day-1) }

	profile := domain.Profile{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ASRSTotalScore:      16,
		IsPositiveScreen:    true,
		AttentionRegulation: 75,
		TimePerception:      63,
		EmotionalIntensity:  50,
		WorkingMemory:       63,
		TaskInitiation:      75,
		HyperfocusCapacity:  63,
		Dimensions: []domain.Dimension{
			{Key: "attention_regulation", Label: "Attention Regulation", Value: 75, Insight: "Attention drifts when the task is dull."},
			{Key: "time_perception", Label: "Time Perception", Value: 63, Insight: "Estimates run short on longer tasks."},
			{Key: "emotional_intensity", Label: "Emotional Intensity", Value: 50, Insight: "Frustration builds on blocked days."},
			{Key: "working_memory", Label: "Working Memory", Value: 63, Insight: "Lists help more than mental notes."},
			{Key: "task_initiation", Label: "Task Initiation", Value: 75, Insight: "Starting is the hardest step."},
			{Key: "hyperfocus_capacity", Label: "Hyperfocus Capacity", Value: 63, Insight: "Long focused runs on interesting work."},
		},
		Strengths:   []string{"Creative problem solving", "Deep focus on interesting work"},
		Challenges:  []string{"Starting tasks", "Estimating time"},
		ProfileTags: []string{"Slow Starter", "Deep Diver", "Time Optimist"},
		Summary:     "Strong bursts of focus once engaged; starting is the hard part.",
		CreatedAt:   start.Format(time.RFC3339),
	}
	if err := r.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("seed profile: %w", err)
	}

	for i := 0; i < Days; i++ {
		at := dayAt(i + 1).Add(11 * time.Hour)
		c := domain.Checkin{
			ID:             uuid.NewString(),
			UserID:         userID,
			Date:           at.Format(time.DateOnly),
			MoodScore:      moods[i],
			EnergyLevel:    energy[i],
			TasksCompleted: completed[i],
			TasksTotal:     totals[i],
			CreatedAt:      at.Format(time.RFC3339),
		}
		if err := r.UpsertCheckin(ctx, c); err != nil {
			return fmt.Errorf("seed checkin day %d: %w", i+1, err)
		}
	}

	for _, day := range interventionDays {
		at := dayAt(day)
		tasks := []domain.Task{
			{Index: 0, Title: "Reply to overdue emails", DurationMinutes: 20, TimeSlot: "09:00", Category: "admin", Priority: "high", Status: "pending"},
			{Index: 1, Title: "Draft project proposal", DurationMinutes: 45, TimeSlot: "09:30", Category: "deep_work", Priority: "high", Status: "pending"},
			{Index: 2, Title: "Walk outside", DurationMinutes: 15, TimeSlot: "10:30", Category: "break", Priority: "medium", Status: "pending"},
		}
		plan := domain.Plan{
			ID:               uuid.NewString(),
			UserID:           userID,
			PlanDate:         at.Format(time.DateOnly),
			BrainState:       domain.BrainFoggy,
			Tasks:            tasks,
			OverallRationale: "Start small, then one deep block while energy is up.",
			CreatedAt:        at.Format(time.RFC3339),
		}
		if err := r.SavePlan(ctx, plan); err != nil {
			return fmt.Errorf("seed plan day %d: %w", day, err)
		}
		restructured := []domain.Task{
			{Index: 0, Title: "Open the proposal doc and write one sentence", DurationMinutes: 5, Category: "deep_work", Priority: "high", Status: "pending"},
			tasks[2],
			{Index: 2, Title: "Draft project proposal", DurationMinutes: 30, Category: "deep_work", Priority: "high", Status: "pending"},
		}
		restructured[1].Index = 1
		hint := "Check back after the first sentence is written."
		iv := domain.Intervention{
			ID:                uuid.NewString(),
			UserID:            userID,
			PlanID:            plan.ID,
			StuckTaskIndex:    1,
			Acknowledgment:    "Blank pages are hard. That is not a character flaw.",
			OriginalTasks:     tasks,
			RestructuredTasks: restructured,
			AgentReasoning:    "Task initiation is the main challenge in the profile, so the proposal was cut to a five minute opener followed by movement.",
			FollowupHint:      &hint,
			CreatedAt:         at.Add(2 * time.Hour).Format(time.RFC3339),
		}
		if err := r.SaveIntervention(ctx, iv); err != nil {
			return fmt.Errorf("seed intervention day %d: %w", day, err)
		}
	}

	cards := []domain.HypothesisCard{
		{
			PatternDetected: "Low-energy mornings precede low completion days",
			Prediction:      "Days that start with energy at 3 or below finish under half of the planned tasks.",
			Confidence:      domain.ConfidenceMedium,
			SupportingEvidence: []domain.Evidence{
				{Day: 1, Detail: "Energy 4, completed 3 of 6"},
				{Day: 4, Detail: "Energy 3, completed 2 of 6"},
			},
			AnnotationDay:   intPtr(4),
			AgentAnnotation: strPtr("Lowest energy of the fortnight"),
		},
		{
			PatternDetected: "Interventions are followed by recovery",
			Prediction:      "Mood rises within two days after an intervention.",
			Confidence:      domain.ConfidenceHigh,
			SupportingEvidence: []domain.Evidence{
				{Day: 5, Detail: "Mood back to 5 after day 4 intervention"},
				{Day: 12, Detail: "Mood 8 after day 11 intervention"},
			},
			AnnotationDay:   intPtr(12),
			AgentAnnotation: strPtr("Best day so far"),
		},
	}
	for i, c := range cards {
		c.ID = uuid.NewString()
		c.UserID = userID
		c.Status = domain.HypothesisActive
		c.CreatedAt = dayAt(Days).Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		if err := r.InsertHypothesis(ctx, c); err != nil {
			return fmt.Errorf("seed hypothesis: %w", err)
		}
	}
	return nil
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
