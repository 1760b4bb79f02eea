package repo

import (
	"context"
	"database/sql"

	"attune/internal/domain"
)

const profileColumns = `id,user_id,asrs_total_score,is_positive_screen,attention_regulation,time_perception,emotional_intensity,working_memory,task_initiation,hyperfocus_capacity,strengths_json,challenges_json,summary,dimensions_json,profile_tags_json,created_at`

// SaveProfile inserts the profile or replaces the one stored under p.ID.
func (r Repo) SaveProfile(ctx context.Context, p domain.Profile) error {
	strengths, err := marshalJSON(nonNilStrings(p.Strengths))
	if err != nil {
		return err
	}
	challenges, err := marshalJSON(nonNilStrings(p.Challenges))
	if err != nil {
		return err
	}
	dims := p.Dimensions
	if dims == nil {
		dims = []domain.Dimension{}
	}
	dimensions, err := marshalJSON(dims)
	if err != nil {
		return err
	}
	tags, err := marshalJSON(nonNilStrings(p.ProfileTags))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO cognitive_profiles(`+profileColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  asrs_total_score=excluded.asrs_total_score, is_positive_screen=excluded.is_positive_screen,
  attention_regulation=excluded.attention_regulation, time_perception=excluded.time_perception,
  emotional_intensity=excluded.emotional_intensity, working_memory=excluded.working_memory,
  task_initiation=excluded.task_initiation, hyperfocus_capacity=excluded.hyperfocus_capacity,
  strengths_json=excluded.strengths_json, challenges_json=excluded.challenges_json, summary=excluded.summary,
  dimensions_json=excluded.dimensions_json, profile_tags_json=excluded.profile_tags_json
WHERE cognitive_profiles.user_id=excluded.user_id`,
		p.ID, p.UserID, p.ASRSTotalScore, boolInt(p.IsPositiveScreen), p.AttentionRegulation, p.TimePerception,
		p.EmotionalIntensity, p.WorkingMemory, p.TaskInitiation, p.HyperfocusCapacity, strengths, challenges, p.Summary,
		dimensions, tags, p.CreatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM cognitive_profiles WHERE id=?`, id))
}

// LatestProfile returns the most recent profile for a user.
func (r Repo) LatestProfile(ctx context.Context, userID string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM cognitive_profiles WHERE user_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID))
}

func scanProfile(row *sql.Row) (domain.Profile, error) {
	var p domain.Profile
	var positive int
	var strengths, challenges, dimensions, tags string
	err := row.Scan(&p.ID, &p.UserID, &p.ASRSTotalScore, &positive, &p.AttentionRegulation, &p.TimePerception,
		&p.EmotionalIntensity, &p.WorkingMemory, &p.TaskInitiation, &p.HyperfocusCapacity, &strengths, &challenges, &p.Summary,
		&dimensions, &tags, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.IsPositiveScreen = positive == 1
	for _, f := range []struct {
		raw string
		dst any
	}{{strengths, &p.Strengths}, {challenges, &p.Challenges}, {dimensions, &p.Dimensions}, {tags, &p.ProfileTags}} {
		if err := unmarshalJSON(f.raw, f.dst); err != nil {
			return p, err
		}
	}
	return p, nil
}

// InsertASRSResponse stores the raw screening answers.
func (r Repo) InsertASRSResponse(ctx context.Context, id, userID string, answers []int, notes *string, createdAt string) error {
	data, err := marshalJSON(answers)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO asrs_responses(id,user_id,answers_json,notes,created_at) VALUES (?,?,?,?,?)`,
		id, userID, data, nullableStr(notes), createdAt)
	return err
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
