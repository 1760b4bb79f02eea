package engine

import (
	"context"
	"fmt"
	"time"

	"attune/internal/domain"
)

// SaveTestResult stores a completed cognitive test for the user.
func (e Engine) SaveTestResult(ctx context.Context, userID string, t domain.TestResult) (domain.TestResult, error) {
	switch t.TestType {
	case domain.TestASRS, domain.TestTimePerception, domain.TestReactionTime:
	default:
		return domain.TestResult{}, invalid("unknown testType %q", t.TestType)
	}
	if err := e.ensureUser(ctx, userID); err != nil {
		return domain.TestResult{}, err
	}
	t.ID = e.newID()
	t.UserID = userID
	t.CompletedAt = e.now().UTC().Format(time.RFC3339)
	if t.RawData == nil {
		t.RawData = map[string]any{}
	}
	if t.Metrics == nil {
		t.Metrics = map[string]any{}
	}
	if err := e.Repo.InsertTestResult(ctx, t); err != nil {
		return domain.TestResult{}, fmt.Errorf("save test result: %w", err)
	}
	return t, nil
}

// LatestTestResults returns the newest result of each test type.
func (e Engine) LatestTestResults(ctx context.Context, userID string) ([]domain.TestResult, error) {
	return e.Repo.LatestTestResults(ctx, userID)
}
