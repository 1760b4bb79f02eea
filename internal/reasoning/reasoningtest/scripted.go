// Package reasoningtest provides a scripted reasoning client for tests.
package reasoningtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"attune/internal/reasoning"
)

// ErrExhausted is returned when Execute is called more times than scripted.
var ErrExhausted = errors.New("reasoningtest: script exhausted")

// ToolCall is a tool invocation the scripted backend performs before answering.
type ToolCall struct {
	Name string
	Args string
}

// Step scripts one Execute call.
type Step struct {
	Calls  []ToolCall
	Result reasoning.Result
	Err    error
}

// Text is a Step answering with free text.
func Text(s string) Step { return Step{Result: reasoning.Result{Text: s}} }

// Object is a Step answering with a schema-bound object.
func Object(v any) Step {
	data, _ := json.Marshal(v)
	return Step{Result: reasoning.Result{Text: string(data), Object: data}}
}

// Fail is a Step returning err.
func Fail(err error) Step { return Step{Err: err} }

// Scripted replays Steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []reasoning.Request
	outputs  []string
}

func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Execute(ctx context.Context, req reasoning.Request) (reasoning.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return reasoning.Result{}, ErrExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	for _, c := range step.Calls {
		if req.Call == nil {
			continue
		}
		out, err := req.Call(ctx, c.Name, json.RawMessage(c.Args))
		if err != nil {
			out = "error: " + err.Error()
		}
		s.mu.Lock()
		s.outputs = append(s.outputs, out)
		s.mu.Unlock()
	}
	return step.Result, step.Err
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []reasoning.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reasoning.Request(nil), s.requests...)
}

// ToolOutputs returns the outputs of scripted tool calls in order.
func (s *Scripted) ToolOutputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.outputs...)
}
