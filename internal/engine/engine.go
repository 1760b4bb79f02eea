package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"attune/internal/agents"
	"attune/internal/config"
	"attune/internal/domain"
	"attune/internal/engine/auth"
	"attune/internal/events"
	"attune/internal/metrics"
	"attune/internal/progress"
	"attune/internal/reasoning"
	"attune/internal/repo"
	"attune/internal/retry"
	"attune/internal/tools"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Pipelines agents.Pipelines
	Hub       *progress.Hub
	Metrics   *metrics.Metrics
	Auth      auth.Service
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string

	runs *semaphore.Weighted
}

func New(db *sql.DB, cfg *config.Config, client reasoning.Client, hub *progress.Hub, m *metrics.Metrics, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := repo.Repo{DB: db}
	slots := cfg.Pipeline.MaxConcurrentRuns
	if slots < 1 {
		slots = 1
	}
	e := Engine{
		DB:      db,
		Repo:    r,
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Hub:     hub,
		Metrics: m,
		Auth:    auth.Service{Secret: cfg.Auth.JWTSecret, TTL: cfg.Auth.TokenTTL},
		Logger:  logger,
		Now:     time.Now,
		NewID:   uuid.NewString,
		runs:    semaphore.NewWeighted(slots),
	}
	e.Pipelines = agents.Pipelines{
		Client: client,
		Repo:   r,
		Retry: retry.Policy{
			Attempts: cfg.Pipeline.RetryAttempts,
			Unit:     cfg.Pipeline.RetryUnit,
		},
		Logger: logger,
		Now:    e.now,
		NewID:  e.newID,
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// recordID is the id a run's record of the given kind is stored under.
func (e Engine) recordID(runID, kind string) string {
	if runID == "" {
		return e.newID()
	}
	return tools.RecordID(runID, kind)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) ensureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return invalid("user id required")
	}
	return e.Repo.EnsureUser(ctx, domain.User{ID: userID, CreatedAt: e.now().UTC().Format(time.RFC3339)})
}

// run is the journal and metrics envelope shared by every pipeline. fn runs on
// a context detached from the caller: once a run has a slot it completes and
// persists even if the caller goes away. The caller stops waiting when ctx ends.
type runFunc func(ctx context.Context, j *journal) (path string, err error)

func (e Engine) run(ctx context.Context, pipeline, userID string, fn runFunc) error {
	if e.runs != nil {
		if err := e.runs.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	j := &journal{e: e, pipeline: pipeline, userID: userID, runID: e.newID()}
	done := make(chan error, 1)
	go func() {
		if e.runs != nil {
			defer e.runs.Release(1)
		}
		detached := context.WithoutCancel(ctx)
		start := e.now()
		j.append(detached, events.TypeRunStarted, nil)
		path, err := fn(detached, j)
		outcome := "succeeded"
		if err != nil {
			outcome = "failed"
			j.append(detached, events.TypeRunFailed, events.EventPayload{"path": path, "error": err.Error()})
			e.logger().Error("pipeline failed", "pipeline", pipeline, "user_id", userID, "run_id", j.runID, "error", err)
		} else {
			j.append(detached, events.TypeRunSucceeded, events.EventPayload{"path": path})
		}
		e.Metrics.PipelineRun(pipeline, path, outcome, e.now().Sub(start))
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// journal writes the diagnostics of one pipeline run.
type journal struct {
	e        Engine
	pipeline string
	userID   string
	runID    string
}

func (j *journal) append(ctx context.Context, typ string, payload events.EventPayload) {
	if err := j.e.Events.Append(ctx, nil, typ, j.userID, j.pipeline, j.runID, payload); err != nil {
		j.e.logger().Warn("journal append failed", "type", typ, "run_id", j.runID, "error", err)
	}
}

// retry returns the engine's policy with attempt failures journaled.
func (j *journal) retry(ctx context.Context) retry.Policy {
	p := j.e.Pipelines.Retry
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		j.append(ctx, events.TypeRunAttempt, events.EventPayload{
			"attempt": attempt,
			"error":   err.Error(),
			"wait_ms": wait.Milliseconds(),
		})
	}
	return p
}

func (e Engine) emitter(userID string) progress.Emitter {
	return progress.Emitter{Hub: e.Hub, UserID: userID}
}
