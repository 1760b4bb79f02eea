package progress

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/agent"
	"attune/internal/metrics"
)

func newHub(capacity int) *Hub {
	return NewHub(capacity, metrics.MustNew(prometheus.NewRegistry()), nil)
}

func TestPublishFansOutToEveryChannelOfUser(t *testing.T) {
	h := newHub(4)
	a := h.Register("u1")
	b := h.Register("u1")
	other := h.Register("u2")

	n := h.Publish(Event{UserID: "u1", Type: KindAgentStarted, Message: "hi"})
	assert.Equal(t, 2, n)
	assert.Equal(t, "hi", (<-a.Events()).Message)
	assert.Equal(t, "hi", (<-b.Events()).Message)
	assert.Empty(t, other.Events())
}

func TestPublishDropsWhenChannelFull(t *testing.T) {
	h := newHub(2)
	sub := h.Register("u1")
	for i := 0; i < 5; i++ {
		h.Publish(Event{UserID: "u1", Type: KindToolStarted})
	}
	assert.Len(t, sub.Events(), 2)
}

func TestEventsKeepEmissionOrder(t *testing.T) {
	h := newHub(DefaultCapacity)
	sub := h.Register("u1")
	e := Emitter{Hub: h, UserID: "u1"}
	e.AgentStarted(agent.RolePlanner)
	e.ToolStarted(agent.RolePlanner, agent.ToolGetUserHistory)
	e.AgentCompleted(agent.RolePlanner)
	e.TaskCompleted(agent.RolePlanner)

	var kinds []Kind
	for len(sub.Events()) > 0 {
		kinds = append(kinds, (<-sub.Events()).Type)
	}
	assert.Equal(t, []Kind{KindAgentStarted, KindToolStarted, KindAgentCompleted, KindTaskCompleted}, kinds)
}

func TestUnknownRoleIsLoggedAndGetsGenericMessage(t *testing.T) {
	var buf bytes.Buffer
	h := NewHub(4, nil, slog.New(slog.NewTextHandler(&buf, nil)))
	sub := h.Register("u1")
	e := Emitter{Hub: h, UserID: "u1"}

	e.AgentStarted(agent.RoleScreening)
	assert.Empty(t, buf.String())
	e.AgentStarted(agent.Role("Night Owl"))

	assert.Equal(t, "Reading your responses...", (<-sub.Events()).Message)
	assert.Equal(t, "Night Owl is working...", (<-sub.Events()).Message)
	assert.Contains(t, buf.String(), "unknown agent role")
	assert.Contains(t, buf.String(), "Night Owl")
}

func TestUnregisterRemovesEmptyUserEntry(t *testing.T) {
	h := newHub(1)
	a := h.Register("u1")
	b := h.Register("u1")
	require.Equal(t, 2, h.Subscribers("u1"))

	h.Unregister(a)
	assert.Equal(t, 1, h.Subscribers("u1"))
	assert.Equal(t, 1, h.Users())

	h.Unregister(b)
	h.Unregister(b)
	assert.Equal(t, 0, h.Users())
	assert.Zero(t, h.Publish(Event{UserID: "u1"}))
}

func TestConcurrentRegisterAndUnregister(t *testing.T) {
	h := newHub(1)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := h.Register("u1")
			h.Publish(Event{UserID: "u1"})
			h.Unregister(sub)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Users())
}

func TestMessagesFallBackForUnknownNames(t *testing.T) {
	assert.Equal(t, "Plan ready!", AgentMessage(agent.RolePlanner, PhaseComplete))
	assert.Equal(t, "Sleep Coach is working...", AgentMessage(agent.Role("Sleep Coach"), PhaseStart))
	assert.Equal(t, "Processing complete", AgentMessage(agent.Role("Sleep Coach"), PhaseComplete))
	assert.Equal(t, "Saving your plan...", ToolMessage(agent.ToolSaveDailyPlan))
	assert.Equal(t, "Using web_search...", ToolMessage(agent.ToolName("web_search")))
}
