package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultBaseURL    = "https://api.anthropic.com/v1"
	defaultModel      = "claude-sonnet-4-5"
	anthropicVersion  = "2023-06-01"
	messagesPath      = "/messages"
	submitTool        = "submit_result"
	defaultMaxTokens  = 4096
	defaultIterations = 10
)

// ErrToolLoop is returned when the backend keeps calling tools past the iteration limit.
var ErrToolLoop = errors.New("tool loop did not finish")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reasoning backend status %d: %s", e.Code, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Anthropic talks to the Messages API and drives the tool-use loop.
type Anthropic struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	MaxIterations int
	HTTP          *http.Client
	Logger        *slog.Logger
}

func NewAnthropic(baseURL, apiKey, model string, timeout time.Duration) *Anthropic {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Anthropic{BaseURL: baseURL, APIKey: apiKey, Model: model, HTTP: &http.Client{Timeout: timeout}}
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type toolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type messagesRequest struct {
	Model     string     `json:"model"`
	MaxTokens int        `json:"max_tokens"`
	System    string     `json:"system,omitempty"`
	Messages  []message  `json:"messages"`
	Tools     []toolSpec `json:"tools,omitempty"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

func (a *Anthropic) Execute(ctx context.Context, req Request) (Result, error) {
	tools, err := a.toolSpecs(req)
	if err != nil {
		return Result{}, err
	}
	body := messagesRequest{
		Model:     firstNonEmpty(a.Model, defaultModel),
		MaxTokens: a.MaxTokens,
		System:    systemPrompt(req),
		Messages:  []message{{Role: "user", Content: []contentBlock{{Type: "text", Text: req.Prompt}}}},
		Tools:     tools,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	limit := a.MaxIterations
	if limit <= 0 {
		limit = defaultIterations
	}

	var lastText string
	for i := 0; i < limit; i++ {
		resp, err := a.send(ctx, body)
		if err != nil {
			return Result{}, err
		}
		body.Messages = append(body.Messages, message{Role: "assistant", Content: resp.Content})

		var text strings.Builder
		var uses []contentBlock
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				uses = append(uses, block)
			}
		}
		if text.Len() > 0 {
			lastText = text.String()
		}
		if len(uses) == 0 {
			return Result{Text: lastText}, nil
		}

		results := make([]contentBlock, 0, len(uses))
		for _, use := range uses {
			if use.Name == submitTool && len(req.OutputSchema) > 0 {
				return Result{Text: firstNonEmpty(lastText, string(use.Input)), Object: use.Input}, nil
			}
			out, callErr := a.call(ctx, req, use)
			block := contentBlock{Type: "tool_result", ToolUseID: use.ID, Content: out}
			if callErr != nil {
				block.Content = callErr.Error()
				block.IsError = true
			}
			results = append(results, block)
		}
		body.Messages = append(body.Messages, message{Role: "user", Content: results})
	}
	return Result{Text: lastText}, fmt.Errorf("%w after %d iterations", ErrToolLoop, limit)
}

func (a *Anthropic) call(ctx context.Context, req Request, use contentBlock) (string, error) {
	if req.Call == nil {
		return "", fmt.Errorf("tool %s is not available", use.Name)
	}
	a.logger().Debug("tool call", "tool", use.Name)
	return req.Call(ctx, use.Name, use.Input)
}

func (a *Anthropic) send(ctx context.Context, body messagesRequest) (messagesResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return messagesResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := strings.TrimRight(firstNonEmpty(a.BaseURL, defaultBaseURL), "/") + messagesPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return messagesResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	client := a.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return messagesResponse{}, fmt.Errorf("reasoning request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return messagesResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return messagesResponse{}, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	var out messagesResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return messagesResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (a *Anthropic) toolSpecs(req Request) ([]toolSpec, error) {
	specs := make([]toolSpec, 0, len(req.Tools)+1)
	for _, t := range req.Tools {
		schema, err := inputSchema(t)
		if err != nil {
			return nil, err
		}
		specs = append(specs, toolSpec{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	if len(req.OutputSchema) > 0 {
		specs = append(specs, toolSpec{
			Name:        submitTool,
			Description: "Submit the final answer for this task. Call it exactly once when the work is done.",
			InputSchema: req.OutputSchema,
		})
	}
	return specs, nil
}

func inputSchema(t mcp.Tool) (json.RawMessage, error) {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema, nil
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", t.Name, err)
	}
	return data, nil
}

func systemPrompt(req Request) string {
	if len(req.Knowledge) == 0 {
		return req.System
	}
	return req.System + "\n\nReference material:\n\n" + strings.Join(req.Knowledge, "\n\n---\n\n")
}

func (a *Anthropic) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
