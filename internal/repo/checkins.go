package repo

import (
	"context"
	"database/sql"

	"attune/internal/domain"
)

// UpsertCheckin stores one checkin per user and date; a second submission for
// the same date replaces the first.
func (r Repo) UpsertCheckin(ctx context.Context, c domain.Checkin) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO checkins(id,user_id,checkin_date,mood_score,energy_level,tasks_completed,tasks_total,notes,created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(user_id,checkin_date) DO UPDATE SET mood_score=excluded.mood_score, energy_level=excluded.energy_level,
  tasks_completed=excluded.tasks_completed, tasks_total=excluded.tasks_total, notes=excluded.notes`,
		c.ID, c.UserID, c.Date, c.MoodScore, c.EnergyLevel, c.TasksCompleted, c.TasksTotal, nullableStr(c.Notes), c.CreatedAt)
	return err
}

// RecentCheckins returns the last limit checkins of a user ordered oldest first.
func (r Repo) RecentCheckins(ctx context.Context, userID string, limit int) ([]domain.Checkin, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT * FROM (
  SELECT id,user_id,checkin_date,mood_score,energy_level,tasks_completed,tasks_total,notes,created_at
  FROM checkins WHERE user_id=? ORDER BY checkin_date DESC LIMIT ?
) ORDER BY checkin_date ASC`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Checkin
	for rows.Next() {
		var c domain.Checkin
		var notes sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Date, &c.MoodScore, &c.EnergyLevel, &c.TasksCompleted, &c.TasksTotal, &notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Notes = strPtr(notes)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r Repo) CountCheckins(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkins WHERE user_id=?`, userID).Scan(&n)
	return n, err
}
