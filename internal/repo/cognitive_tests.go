package repo

import (
	"context"

	"attune/internal/domain"
)

const testColumns = `id,user_id,test_type,score,raw_data_json,metrics_json,label,interpretation,completed_at`

func (r Repo) InsertTestResult(ctx context.Context, t domain.TestResult) error {
	raw, err := marshalJSON(nonNilMap(t.RawData))
	if err != nil {
		return err
	}
	metrics, err := marshalJSON(nonNilMap(t.Metrics))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO cognitive_tests(`+testColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.TestType, t.Score, raw, metrics, t.Label, t.Interpretation, t.CompletedAt)
	return err
}

// LatestTestResults returns the newest result of each test type for a user,
// ordered by test type.
func (r Repo) LatestTestResults(ctx context.Context, userID string) ([]domain.TestResult, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+testColumns+` FROM cognitive_tests t
WHERE user_id=? AND rowid = (
  SELECT rowid FROM cognitive_tests
  WHERE user_id=t.user_id AND test_type=t.test_type
  ORDER BY completed_at DESC, rowid DESC LIMIT 1
)
ORDER BY test_type`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.TestResult{}
	for rows.Next() {
		var t domain.TestResult
		var raw, metrics string
		if err := rows.Scan(&t.ID, &t.UserID, &t.TestType, &t.Score, &raw, &metrics, &t.Label, &t.Interpretation, &t.CompletedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(raw, &t.RawData); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(metrics, &t.Metrics); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
