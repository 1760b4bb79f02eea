// Package crew runs pipelines of agent tasks against a reasoning client,
// either in declared order or behind a manager that briefs the specialists.
package crew

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"attune/internal/agent"
	"attune/internal/reasoning"
)

const traceScope = "attune/crew"

var ErrNoManager = errors.New("hierarchical crew needs a manager task and at least one delegated task")

// Tool is a callable exposed to the agent executing a task.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

type Agent struct {
	Role      agent.Role
	Goal      string
	Backstory string
	Tools     []Tool
	Knowledge []string
}

// Task is one unit of work bound to an agent. Output, when set, is a value of
// the structured type the task must produce.
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          Agent
	Output         any
}

// Listener observes task lifecycle steps as they happen.
type Listener interface {
	AgentStarted(role agent.Role)
	ToolStarted(role agent.Role, tool agent.ToolName)
	AgentCompleted(role agent.Role)
	TaskCompleted(role agent.Role)
}

type nopListener struct{}

func (nopListener) AgentStarted(agent.Role) {}
func (nopListener) ToolStarted(agent.Role, agent.ToolName) {}
func (nopListener) AgentCompleted(agent.Role) {}
func (nopListener) TaskCompleted(agent.Role) {}

// TaskError aborts a run: the named task could not complete.
type TaskError struct {
	Task string
	Role agent.Role
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.Task, e.Role, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

type TaskOutput struct {
	Task   string
	Role   agent.Role
	Result reasoning.Result
}

// Output is the aggregate of one run. Result is the last task's result; in
// hierarchical mode that is the last delegated task, never the manager.
type Output struct {
	Result    reasoning.Result
	Directive string
	Tasks     []TaskOutput
}

type Crew struct {
	Name     string
	Process  agent.Process
	Manager  *Task
	Tasks    []Task
	Client   reasoning.Client
	Listener Listener
	Logger   *slog.Logger
}

// Kickoff executes the crew once.
func (c Crew) Kickoff(ctx context.Context) (Output, error) {
	if c.Listener == nil {
		c.Listener = nopListener{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	ctx, span := otel.Tracer(traceScope).Start(ctx, "crew.kickoff", trace.WithAttributes(
		attribute.String("attune.crew", c.Name),
		attribute.String("attune.process", c.Process.String()),
	))
	defer span.End()

	var (
		out Output
		err error
	)
	switch c.Process {
	case agent.Hierarchical:
		out, err = c.runHierarchical(ctx)
	default:
		out, err = c.runSequential(ctx, "")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (c Crew) runSequential(ctx context.Context, directive string) (Output, error) {
	out := Output{Directive: directive}
	for _, t := range c.Tasks {
		res, err := c.runTask(ctx, t, taskContext(directive, c.Manager, out.Tasks))
		if err != nil {
			return out, err
		}
		out.Tasks = append(out.Tasks, TaskOutput{Task: t.Name, Role: t.Agent.Role, Result: res})
		out.Result = res
	}
	return out, nil
}

// runHierarchical is two phases: the manager writes a briefing, then every
// delegated task runs in order with that briefing as verbatim input.
func (c Crew) runHierarchical(ctx context.Context) (Output, error) {
	if c.Manager == nil || len(c.Tasks) == 0 {
		return Output{}, ErrNoManager
	}
	manager := *c.Manager
	manager.Description = manager.Description + "\n\n" + delegationBrief(c.Tasks)
	manager.Output = nil
	res, err := c.runTask(ctx, manager, "")
	if err != nil {
		return Output{}, err
	}
	directive := strings.TrimSpace(res.Text)
	c.Logger.Debug("manager briefing ready", "crew", c.Name, "chars", len(directive))
	return c.runSequential(ctx, directive)
}

func (c Crew) runTask(ctx context.Context, t Task, upstream string) (reasoning.Result, error) {
	role := t.Agent.Role
	ctx, span := otel.Tracer(traceScope).Start(ctx, "crew.task", trace.WithAttributes(
		attribute.String("attune.task", t.Name),
		attribute.String("attune.role", string(role)),
	))
	defer span.End()

	c.Listener.AgentStarted(role)
	req := reasoning.Request{
		System:    persona(t.Agent),
		Prompt:    prompt(t, upstream),
		Knowledge: t.Agent.Knowledge,
		Call:      c.toolCaller(t.Agent),
	}
	for _, tool := range t.Agent.Tools {
		req.Tools = append(req.Tools, tool.Definition())
	}
	if t.Output != nil {
		schema, err := reasoning.SchemaFor(t.Output)
		if err != nil {
			return reasoning.Result{}, &TaskError{Task: t.Name, Role: role, Err: err}
		}
		req.OutputSchema = schema
	}

	res, err := c.Client.Execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.Logger.Warn("task failed", "crew", c.Name, "task", t.Name, "role", role, "error", err)
		return reasoning.Result{}, &TaskError{Task: t.Name, Role: role, Err: err}
	}
	c.Listener.AgentCompleted(role)
	c.Listener.TaskCompleted(role)
	return res, nil
}

func (c Crew) toolCaller(a Agent) reasoning.ToolCaller {
	byName := make(map[string]Tool, len(a.Tools))
	for _, t := range a.Tools {
		byName[t.Definition().Name] = t
	}
	return func(ctx context.Context, name string, args json.RawMessage) (string, error) {
		ctx, span := otel.Tracer(traceScope).Start(ctx, "crew.tool", trace.WithAttributes(
			attribute.String("attune.tool", name),
		))
		defer span.End()

		c.Listener.ToolStarted(a.Role, agent.ToolName(name))
		tool, ok := byName[name]
		if !ok {
			return "", fmt.Errorf("unknown tool %q", name)
		}
		arguments := map[string]any{}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &arguments); err != nil {
				return "", fmt.Errorf("decode %s arguments: %w", name, err)
			}
		}
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = arguments
		res, err := tool.Handle(ctx, req)
		if err != nil {
			span.RecordError(err)
			return "", err
		}
		text := ResultText(res)
		if res != nil && res.IsError {
			return "", errors.New(text)
		}
		return text, nil
	}
}

// ResultText joins the text content of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, content := range res.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func persona(a Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s.", a.Role)
	if a.Goal != "" {
		fmt.Fprintf(&b, "\nGoal: %s", a.Goal)
	}
	if a.Backstory != "" {
		fmt.Fprintf(&b, "\n\n%s", a.Backstory)
	}
	return b.String()
}

func prompt(t Task, upstream string) string {
	var b strings.Builder
	b.WriteString(t.Description)
	if t.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\n\nExpected output: %s", t.ExpectedOutput)
	}
	if upstream != "" {
		fmt.Fprintf(&b, "\n\n%s", upstream)
	}
	return b.String()
}

func taskContext(directive string, manager *Task, prior []TaskOutput) string {
	var b strings.Builder
	if directive != "" && manager != nil {
		fmt.Fprintf(&b, "Briefing from the %s:\n%s", manager.Agent.Role, directive)
	}
	for _, p := range prior {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Output of %s (%s):\n%s", p.Task, p.Role, p.Result.Text)
	}
	return b.String()
}

func delegationBrief(tasks []Task) string {
	var b strings.Builder
	b.WriteString("You do not complete the work yourself. Gather what the specialists need and write a briefing they will act on:")
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n- %s: %s", t.Agent.Role, firstLine(t.Description))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
