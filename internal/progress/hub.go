// Package progress fans pipeline lifecycle events out to per-user subscriber channels.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"attune/internal/agent"
	"attune/internal/metrics"
)

// Kind is the wire type of a progress event.
type Kind string

const (
	KindAgentStarted   Kind = "agent_started"
	KindAgentCompleted Kind = "agent_completed"
	KindToolStarted    Kind = "tool_started"
	KindTaskCompleted  Kind = "task_completed"
	KindHeartbeat      Kind = "heartbeat"
)

const DefaultCapacity = 50

// Event is one progress notification. Only Type, Agent, Tool and Message go on the wire.
type Event struct {
	UserID    string    `json:"-"`
	Type      Kind      `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"-"`
}

// Heartbeat is the synthetic event sent on idle streams.
func Heartbeat() Event {
	return Event{Type: KindHeartbeat, Timestamp: time.Now()}
}

// Subscription is one registered channel. It belongs to exactly one connection.
type Subscription struct {
	UserID string
	ch     chan Event
}

// Events is the receive side of the subscription.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Hub is the process-wide registry of subscriber channels keyed by user id.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[*Subscription]struct{}
	capacity int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewHub(capacity int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:     map[string]map[*Subscription]struct{}{},
		capacity: capacity,
		metrics:  m,
		logger:   logger,
	}
}

// Register adds a bounded channel for userID.
func (h *Hub) Register(userID string) *Subscription {
	sub := &Subscription{UserID: userID, ch: make(chan Event, h.capacity)}
	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
	return sub
}

// Unregister removes sub, dropping the user's entry once it is empty.
// Calling it twice is harmless.
func (h *Hub) Unregister(sub *Subscription) {
	h.mu.Lock()
	set, ok := h.subs[sub.UserID]
	_, present := set[sub]
	if ok && present {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	h.mu.Unlock()
	if present {
		h.metrics.ConnectionClosed()
	}
}

// Publish enqueues ev on every channel of ev.UserID without blocking. Full
// channels lose the event. It returns how many channels accepted it.
func (h *Hub) Publish(ev Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	delivered, dropped := 0, 0
	h.mu.Lock()
	for sub := range h.subs[ev.UserID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
		}
	}
	h.mu.Unlock()
	if delivered > 0 {
		h.metrics.EventPublished(string(ev.Type))
	}
	for range dropped {
		h.metrics.EventDropped()
	}
	if dropped > 0 {
		h.logger.Debug("progress event dropped", "user_id", ev.UserID, "type", ev.Type, "channels", dropped)
	}
	return delivered
}

// Subscribers reports the number of live channels for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Users reports how many users have at least one live channel.
func (h *Hub) Users() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Emitter publishes pipeline lifecycle callbacks for one user.
type Emitter struct {
	Hub    *Hub
	UserID string
}

func (e Emitter) publish(ev Event) {
	if e.Hub == nil {
		return
	}
	ev.UserID = e.UserID
	e.Hub.Publish(ev)
}

func (e Emitter) AgentStarted(role agent.Role) {
	if !role.Known() && e.Hub != nil {
		e.Hub.logger.Warn("progress for unknown agent role", "user_id", e.UserID, "agent", string(role))
	}
	e.publish(Event{Type: KindAgentStarted, Agent: string(role), Message: AgentMessage(role, PhaseStart)})
}

func (e Emitter) ToolStarted(role agent.Role, tool agent.ToolName) {
	e.publish(Event{Type: KindToolStarted, Agent: string(role), Tool: string(tool), Message: ToolMessage(tool)})
}

func (e Emitter) AgentCompleted(role agent.Role) {
	e.publish(Event{Type: KindAgentCompleted, Agent: string(role), Message: AgentMessage(role, PhaseComplete)})
}

func (e Emitter) TaskCompleted(role agent.Role) {
	e.publish(Event{Type: KindTaskCompleted, Agent: string(role), Message: completeFallback})
}
