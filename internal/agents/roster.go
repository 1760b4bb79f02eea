// Package agents assembles the screening, planning, intervention and pattern
// pipelines from agent definitions, tools and the reasoning client.
package agents

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"attune/internal/agent"
	"attune/internal/crew"
	"attune/internal/reasoning"
	"attune/internal/repo"
	"attune/internal/retry"
	"attune/internal/tools"
)

// Pipelines builds pipeline runs. It holds no per-request state.
type Pipelines struct {
	Client    reasoning.Client
	Repo      repo.Repo
	Knowledge []string
	Retry     retry.Policy
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func (p Pipelines) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// env binds the tools to one user and, when runID is set, to one pipeline run.
func (p Pipelines) env(userID, runID string) tools.Env {
	return tools.Env{Repo: p.Repo, UserID: userID, RunID: runID, Now: p.Now, NewID: p.NewID}
}

func (p Pipelines) crew(name string, process agent.Process, l crew.Listener, manager *crew.Task, tasks ...crew.Task) crew.Crew {
	return crew.Crew{
		Name:     name,
		Process:  process,
		Manager:  manager,
		Tasks:    tasks,
		Client:   p.Client,
		Listener: l,
		Logger:   p.logger(),
	}
}

func (p Pipelines) manager(env tools.Env) crew.Agent {
	return crew.Agent{
		Role: agent.RoleManager,
		Goal: "Coordinate the specialist agents so every plan reflects the user's profile, history and current state.",
		Backstory: "You oversee a team of executive-function specialists. You read the user's profile and recent " +
			"history, decide what matters today and brief the specialist who does the work.",
		Tools: []crew.Tool{tools.GetCognitiveProfile{Env: env}, tools.GetUserHistory{Env: env}},
	}
}

func (p Pipelines) planner(env tools.Env) crew.Agent {
	return crew.Agent{
		Role: agent.RolePlanner,
		Goal: "Build a realistic daily plan that fits the user's brain state, cognitive profile and time window.",
		Backstory: "You design days for people with ADHD. You know that task initiation is the hardest step, " +
			"that time blindness makes estimates optimistic and that energy varies across the day.",
		Tools:     []crew.Tool{tools.GetCognitiveProfile{Env: env}, tools.GetUserHistory{Env: env}, tools.SaveDailyPlan{Env: env}},
		Knowledge: p.Knowledge,
	}
}

func (p Pipelines) interventionist(env tools.Env) crew.Agent {
	return crew.Agent{
		Role: agent.RoleIntervention,
		Goal: "Get the user unstuck by restructuring the remaining plan without shame.",
		Backstory: "You respond when someone is stuck. You acknowledge the feeling first, then shrink the " +
			"stuck task into a first step that takes under five minutes and reorder what is left.",
		Tools: []crew.Tool{tools.GetCognitiveProfile{Env: env}, tools.GetCurrentPlan{Env: env}, tools.SaveIntervention{Env: env}},
	}
}

func (p Pipelines) screener(env tools.Env) crew.Agent {
	return crew.Agent{
		Role: agent.RoleScreening,
		Goal: "Turn ASRS screening answers into a strengths-first cognitive portrait.",
		Backstory: "You interpret ADHD screening results. You never diagnose; you describe how attention, time, " +
			"emotion, memory, initiation and hyperfocus show up for this person.",
		Tools: []crew.Tool{tools.ScoreASRSTool{}, tools.SaveProfile{Env: env}},
	}
}

func (p Pipelines) analyst(env tools.Env) crew.Agent {
	return crew.Agent{
		Role: agent.RolePattern,
		Goal: "Find behavioral patterns in the user's checkins and state them as testable hypotheses.",
		Backstory: "You look for recurring links between mood, energy, completion and interventions. " +
			"Every hypothesis cites the days that support it.",
		Tools: []crew.Tool{tools.GetUserHistory{Env: env, Days: 14}},
	}
}

// LoadKnowledge reads every .md file in dir in name order. A missing dir yields nothing.
func LoadKnowledge(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	var out []string
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read knowledge %s: %w", m, err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}
