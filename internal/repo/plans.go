package repo

import (
	"context"
	"database/sql"

	"attune/internal/domain"
)

const planColumns = `id,user_id,plan_date,brain_state,time_window_minutes,tasks_json,overall_rationale,created_at`

// SavePlan inserts the plan or replaces the one stored under p.ID for the same user.
func (r Repo) SavePlan(ctx context.Context, p domain.Plan) error {
	tasks, err := marshalJSON(nonNilTasks(p.Tasks))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO daily_plans(`+planColumns+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  plan_date=excluded.plan_date, brain_state=excluded.brain_state, time_window_minutes=excluded.time_window_minutes,
  tasks_json=excluded.tasks_json, overall_rationale=excluded.overall_rationale
WHERE daily_plans.user_id=excluded.user_id`,
		p.ID, p.UserID, p.PlanDate, p.BrainState, nullableInt(p.TimeWindowMinutes), tasks, p.OverallRationale, p.CreatedAt)
	return err
}

func (r Repo) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM daily_plans WHERE id=?`, id)
	return scanPlan(row.Scan)
}

// LatestPlan returns the most recently created plan for a user.
func (r Repo) LatestPlan(ctx context.Context, userID string) (domain.Plan, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM daily_plans WHERE user_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID)
	return scanPlan(row.Scan)
}

// ListPlans returns up to limit plans for a user, newest first.
func (r Repo) ListPlans(ctx context.Context, userID string, limit int) ([]domain.Plan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+planColumns+` FROM daily_plans WHERE user_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PlanDates maps plan id to plan date for every plan of a user.
func (r Repo) PlanDates(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_date FROM daily_plans WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var id, date string
		if err := rows.Scan(&id, &date); err != nil {
			return nil, err
		}
		out[id] = date
	}
	return out, rows.Err()
}

func scanPlan(scan func(dest ...any) error) (domain.Plan, error) {
	var p domain.Plan
	var window sql.NullInt64
	var tasks string
	err := scan(&p.ID, &p.UserID, &p.PlanDate, &p.BrainState, &window, &tasks, &p.OverallRationale, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.TimeWindowMinutes = intPtr(window)
	if err := unmarshalJSON(tasks, &p.Tasks); err != nil {
		return p, err
	}
	return p, nil
}

func nonNilTasks(v []domain.Task) []domain.Task {
	if v == nil {
		return []domain.Task{}
	}
	return v
}
