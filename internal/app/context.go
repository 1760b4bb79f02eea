// Package app wires the database, config and services into one runtime.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"attune/internal/agents"
	"attune/internal/config"
	"attune/internal/db"
	"attune/internal/engine"
	"attune/internal/metrics"
	"attune/internal/migrate"
	"attune/internal/progress"
	"attune/internal/reasoning"
)

type Options struct {
	DB     db.Config
	Config *config.Config
	Logger *slog.Logger
	// Client replaces the Anthropic client built from Config.Reasoning.
	Client reasoning.Client
	// Registry receives the collectors. Nil creates a fresh registry.
	Registry *prometheus.Registry
}

// Context is an opened runtime. Close releases the database.
type Context struct {
	DB       *sql.DB
	Config   *config.Config
	Engine   engine.Engine
	Hub      *progress.Hub
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Open opens and migrates the database and builds the engine.
func Open(opts Options) (*Context, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(opts.DB)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Apply(context.Background(), conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, s := range applied {
		logger.Info("applied migration", "version", s.Version, "name", s.Name)
	}
	knowledge, err := agents.LoadKnowledge(cfg.KnowledgeDir)
	if err != nil {
		conn.Close()
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.MustNew(reg)
	hub := progress.NewHub(cfg.Stream.Capacity, m, logger)

	client := opts.Client
	if client == nil {
		a := reasoning.NewAnthropic(cfg.Reasoning.BaseURL, cfg.Reasoning.APIKey, cfg.Reasoning.Model, cfg.Reasoning.Timeout)
		a.MaxTokens = cfg.Reasoning.MaxTokens
		a.MaxIterations = cfg.Reasoning.MaxIterations
		a.Logger = logger
		client = a
	}
	eng := engine.New(conn, cfg, client, hub, m, logger)
	eng.Pipelines.Knowledge = knowledge

	return &Context{
		DB:       conn,
		Config:   cfg,
		Engine:   eng,
		Hub:      hub,
		Metrics:  m,
		Registry: reg,
		Logger:   logger,
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}
