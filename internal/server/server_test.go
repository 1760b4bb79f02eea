package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"attune/internal/agents"
	"attune/internal/app"
	"attune/internal/config"
	"attune/internal/db"
	"attune/internal/domain"
	"attune/internal/progress"
	"attune/internal/reasoning/reasoningtest"
	"attune/internal/seed"
)

type testServer struct {
	URL    string
	rt     *app.Context
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func newTestServer(t *testing.T, steps ...reasoningtest.Step) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Pipeline.RetryUnit = time.Millisecond
	rt, err := app.Open(app.Options{
		DB:     db.Config{DataDir: t.TempDir()},
		Config: cfg,
		Client: reasoningtest.New(steps...),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	tokens := rt.Engine.Auth
	handler, err := New(Config{
		Engine:   rt.Engine,
		BasePath: "/api",
		Auth:     AuthConfig{Tokens: tokens},
		Stream:   StreamConfig{Hub: rt.Hub, Tokens: tokens, Heartbeat: 50 * time.Millisecond, Metrics: rt.Metrics},
		Gatherer: rt.Registry,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		rt:     rt,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			rt.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func guestToken(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/guest", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("guest login: %d %s", res.StatusCode, string(data))
	}
	var out GuestResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal guest: %v", err)
	}
	if out.UserID != seed.GuestUserID || out.Token == "" || !out.HasProfile {
		t.Fatalf("unexpected guest response: %+v", out)
	}
	return out.Token
}

func errorCode(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code, env.Error.Details
}

func TestHealthIsPublicAndAPIRequiresToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/"+seed.GuestUserID, nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if code, _ := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("unexpected code %s", code)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/"+seed.GuestUserID, nil, bearer("garbage"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestGuestDashboard(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := guestToken(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/"+seed.GuestUserID, nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d %s", res.StatusCode, string(data))
	}
	var d DashboardResponse
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if len(d.Trend) != seed.Days || len(d.Annotations) != 4 {
		t.Fatalf("unexpected dashboard: %d points, %d annotations", len(d.Trend), len(d.Annotations))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/someone-else", nil, bearer(token))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
}

func TestGeneratePlan(t *testing.T) {
	srv, cleanup := newTestServer(t,
		reasoningtest.Text("Briefing"),
		reasoningtest.Object(agents.PlanOutput{Tasks: []domain.Task{{Title: "Stretch"}}, OverallRationale: "gentle"}),
	)
	defer cleanup()
	token := guestToken(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/plan/generate", map[string]any{
		"brainState":        "foggy",
		"timeWindowMinutes": 60,
	}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", res.StatusCode, string(data))
	}
	var out PlanResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if out.PlanID == "" || len(out.Tasks) != 1 || out.Tasks[0].Status != "pending" {
		t.Fatalf("unexpected plan: %+v", out)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/plan/generate", map[string]any{
		"brainState": "sleepy",
	}, bearer(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestUnparseableOutputIsBadGatewayWithRaw(t *testing.T) {
	var steps []reasoningtest.Step
	for i := 0; i < 3; i++ {
		steps = append(steps, reasoningtest.Fail(errors.New("manager down")))
	}
	for i := 0; i < 3; i++ {
		steps = append(steps, reasoningtest.Text("sorry, no plan today"))
	}
	srv, cleanup := newTestServer(t, steps...)
	defer cleanup()
	token := guestToken(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/plan/generate", map[string]any{
		"brainState": "focused",
	}, bearer(token))
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d %s", res.StatusCode, string(data))
	}
	code, details := errorCode(t, data)
	if code != "unparseable_output" || details["raw"] != "sorry, no plan today" {
		t.Fatalf("unexpected error: %s %v", code, details)
	}
}

func TestCheckinAndFeedback(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := guestToken(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/checkins", map[string]any{
		"date":           "2030-01-01",
		"moodScore":      6,
		"energyLevel":    5,
		"tasksCompleted": 2,
		"tasksTotal":     4,
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("checkin: %d %s", res.StatusCode, string(data))
	}

	ivs, err := srv.rt.Engine.Repo.ListInterventions(context.Background(), seed.GuestUserID, 10)
	if err != nil || len(ivs) == 0 {
		t.Fatalf("list interventions: %v", err)
	}
	url := srv.URL + "/api/interventions/" + ivs[0].ID + "/feedback"
	res, data = doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{"rating": 4, "feedback": "good"}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("feedback: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{"rating": 9}, bearer(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for rating 9, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/interventions/missing/feedback", map[string]any{"rating": 3}, bearer(token))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestPatternsNeedAWeek(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, err := srv.rt.Engine.Auth.Issue("new-user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/patterns/detect", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("detect: %d %s", res.StatusCode, string(data))
	}
	var out PatternResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Cards == nil || len(out.Cards) != 0 {
		t.Fatalf("expected empty card list, got %s", string(data))
	}
}

func TestCognitiveTestsSaveAndLatest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := guestToken(t, srv)

	save := func(score int) SaveTestResponse {
		t.Helper()
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/cognitive-tests/save", map[string]any{
			"userId":         seed.GuestUserID,
			"testType":       "time_perception",
			"score":          score,
			"rawData":        map[string]any{"trials": []int{9800, 10400}},
			"metrics":        map[string]any{"meanErrorPct": 4.2},
			"label":          "Accurate",
			"interpretation": "Close to the target interval.",
		}, bearer(token))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("save: %d %s", res.StatusCode, string(data))
		}
		var out SaveTestResponse
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal save: %v", err)
		}
		if out.TestID == "" || out.Status != "saved" {
			t.Fatalf("unexpected save response: %+v", out)
		}
		return out
	}
	save(70)
	latest := save(81)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/cognitive-tests/"+seed.GuestUserID, nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var out TestResultsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(out.Tests) != 1 || out.Tests[0].ID != latest.TestID || out.Tests[0].Score != 81 {
		t.Fatalf("expected only the latest time_perception result, got %s", string(data))
	}
	if out.Tests[0].Metrics["meanErrorPct"] != 4.2 {
		t.Fatalf("metrics not returned: %+v", out.Tests[0].Metrics)
	}
}

func TestCognitiveTestsAreOwnerOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := guestToken(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/cognitive-tests/save", map[string]any{
		"userId":         "someone-else",
		"testType":       "asrs",
		"score":          12,
		"rawData":        map[string]any{},
		"metrics":        map[string]any{},
		"label":          "Low",
		"interpretation": "",
	}, bearer(token))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 saving for another user, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/cognitive-tests/someone-else", nil, bearer(token))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 reading another user, got %d %s", res.StatusCode, string(data))
	}
	tests, err := srv.rt.Engine.LatestTestResults(context.Background(), "someone-else")
	if err != nil || len(tests) != 0 {
		t.Fatalf("forbidden save must not store anything: %v %v", tests, err)
	}
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error, got %v", err)
	}
	return ce.Code
}

func TestStreamRejectsMissingTokenBeforeRegistering(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/agent-progress/"+seed.GuestUserID), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if code := closeCode(t, conn); code != CloseMissingToken {
		t.Fatalf("expected %d, got %d", CloseMissingToken, code)
	}
	if n := srv.rt.Hub.Users(); n != 0 {
		t.Fatalf("registry grew to %d", n)
	}
}

func TestStreamRejectsMismatchedToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, err := srv.rt.Engine.Auth.Issue("someone-else")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, tok := range []string{token, "not-a-jwt"} {
		conn, _, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/agent-progress/"+seed.GuestUserID+"?token="+tok), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		if code := closeCode(t, conn); code != CloseInvalidToken {
			t.Fatalf("expected %d, got %d", CloseInvalidToken, code)
		}
		conn.Close()
	}
	if n := srv.rt.Hub.Users(); n != 0 {
		t.Fatalf("registry grew to %d", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamForwardsEventsAndHeartbeats(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, err := srv.rt.Engine.Auth.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/agent-progress/u1?token="+token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return srv.rt.Hub.Subscribers("u1") == 1 })

	srv.rt.Hub.Publish(progress.Event{UserID: "u1", Type: progress.KindToolStarted, Agent: "Planner", Tool: "get_current_plan", Message: "Reviewing your current plan..."})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev["type"] != "tool_started" || ev["tool"] != "get_current_plan" {
		t.Fatalf("unexpected event: %v", ev)
	}

	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
	if ev["type"] != "heartbeat" {
		t.Fatalf("expected heartbeat, got %v", ev)
	}

	conn.Close()
	waitFor(t, func() bool { return srv.rt.Hub.Users() == 0 })
}
