package repo

import (
	"context"
	"database/sql"

	"attune/internal/domain"
)

func (r Repo) InsertHypothesis(ctx context.Context, h domain.HypothesisCard) error {
	evidence := h.SupportingEvidence
	if evidence == nil {
		evidence = []domain.Evidence{}
	}
	data, err := marshalJSON(evidence)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO hypothesis_cards(id,user_id,pattern_detected,prediction,confidence,evidence_json,status,annotation_day,agent_annotation,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.UserID, h.PatternDetected, h.Prediction, h.Confidence, data, h.Status,
		nullableInt(h.AnnotationDay), nullableStr(h.AgentAnnotation), h.CreatedAt)
	return err
}

// ListHypotheses returns a user's hypothesis cards, newest first.
func (r Repo) ListHypotheses(ctx context.Context, userID string) ([]domain.HypothesisCard, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,pattern_detected,prediction,confidence,evidence_json,status,annotation_day,agent_annotation,created_at
FROM hypothesis_cards WHERE user_id=? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.HypothesisCard
	for rows.Next() {
		var h domain.HypothesisCard
		var evidence string
		var day sql.NullInt64
		var annotation sql.NullString
		if err := rows.Scan(&h.ID, &h.UserID, &h.PatternDetected, &h.Prediction, &h.Confidence, &evidence, &h.Status, &day, &annotation, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.AnnotationDay = intPtr(day)
		h.AgentAnnotation = strPtr(annotation)
		if err := unmarshalJSON(evidence, &h.SupportingEvidence); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
