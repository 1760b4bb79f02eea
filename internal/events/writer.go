package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"attune/internal/domain"
)

// Journal event types.
const (
	TypeRunStarted   = "pipeline.started"
	TypeRunAttempt   = "pipeline.attempt_failed"
	TypeRunFallback  = "pipeline.fallback"
	TypeRunSucceeded = "pipeline.succeeded"
	TypeRunFailed    = "pipeline.failed"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one journal entry. A nil exec writes through w.DB.
func (w Writer) Append(ctx context.Context, exec Execer, evtType, userID, pipeline, runID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if exec == nil {
		exec = w.DB
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = exec.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,pipeline,run_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, nullable(userID), pipeline, runID, string(data))
	return err
}

// List returns the newest entries for a user, newest first.
func (w Writer) List(ctx context.Context, userID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(user_id,''),pipeline,run_id,payload_json FROM events WHERE user_id=? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.Pipeline, &e.RunID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
