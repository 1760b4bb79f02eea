package repo

import (
	"context"
	"database/sql"

	"attune/internal/domain"
)

const interventionColumns = `id,user_id,plan_id,stuck_task_index,user_message,acknowledgment,original_tasks_json,restructured_tasks_json,agent_reasoning,followup_hint,rating,feedback,created_at`

// SaveIntervention inserts the intervention or replaces the pipeline fields of
// the one stored under iv.ID. Rating and feedback are never overwritten.
func (r Repo) SaveIntervention(ctx context.Context, iv domain.Intervention) error {
	original, err := marshalJSON(nonNilTasks(iv.OriginalTasks))
	if err != nil {
		return err
	}
	restructured, err := marshalJSON(nonNilTasks(iv.RestructuredTasks))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO interventions(`+interventionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  plan_id=excluded.plan_id, stuck_task_index=excluded.stuck_task_index, user_message=excluded.user_message,
  acknowledgment=excluded.acknowledgment, original_tasks_json=excluded.original_tasks_json,
  restructured_tasks_json=excluded.restructured_tasks_json, agent_reasoning=excluded.agent_reasoning,
  followup_hint=excluded.followup_hint
WHERE interventions.user_id=excluded.user_id`,
		iv.ID, iv.UserID, nullable(iv.PlanID), iv.StuckTaskIndex, nullableStr(iv.UserMessage), iv.Acknowledgment,
		original, restructured, iv.AgentReasoning, nullableStr(iv.FollowupHint), nullableInt(iv.Rating), nullableStr(iv.Feedback), iv.CreatedAt)
	return err
}

func (r Repo) GetIntervention(ctx context.Context, id string) (domain.Intervention, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id=?`, id)
	return scanIntervention(row.Scan)
}

// ListInterventions returns up to limit interventions for a user, oldest first.
func (r Repo) ListInterventions(ctx context.Context, userID string, limit int) ([]domain.Intervention, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT * FROM (SELECT `+interventionColumns+` FROM interventions WHERE user_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?) ORDER BY created_at ASC`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// RateIntervention attaches a rating and optional feedback to a user's intervention.
func (r Repo) RateIntervention(ctx context.Context, id, userID string, rating int, feedback *string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE interventions SET rating=?, feedback=? WHERE id=? AND user_id=?`,
		rating, nullableStr(feedback), id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIntervention(scan func(dest ...any) error) (domain.Intervention, error) {
	var iv domain.Intervention
	var planID, message, hint, feedback sql.NullString
	var rating sql.NullInt64
	var original, restructured string
	err := scan(&iv.ID, &iv.UserID, &planID, &iv.StuckTaskIndex, &message, &iv.Acknowledgment,
		&original, &restructured, &iv.AgentReasoning, &hint, &rating, &feedback, &iv.CreatedAt)
	if err == sql.ErrNoRows {
		return iv, ErrNotFound
	}
	if err != nil {
		return iv, err
	}
	iv.PlanID = planID.String
	iv.UserMessage = strPtr(message)
	iv.FollowupHint = strPtr(hint)
	iv.Feedback = strPtr(feedback)
	iv.Rating = intPtr(rating)
	if err := unmarshalJSON(original, &iv.OriginalTasks); err != nil {
		return iv, err
	}
	if err := unmarshalJSON(restructured, &iv.RestructuredTasks); err != nil {
		return iv, err
	}
	return iv, nil
}
