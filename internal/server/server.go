package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attune/internal/domain"
	"attune/internal/engine"
	"attune/internal/reasoning"
	"attune/internal/repo"
	"attune/internal/resolve"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Stream   StreamConfig
	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"plan not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"raw\":\"I could not make a plan\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Attune API, the progress stream and metrics.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	if cfg.Stream.Logger == nil {
		cfg.Stream.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Attune API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerGuest(group, cfg.Engine)
	registerScreening(group, cfg.Engine)
	registerPlans(group, cfg.Engine)
	registerInterventions(group, cfg.Engine)
	registerCheckins(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerPatterns(group, cfg.Engine)
	registerJournal(group, cfg.Engine)
	registerCognitiveTests(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	router.Get("/ws/agent-progress/{user_id}", cfg.Stream.ServeHTTP)
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var pe *resolve.ParseError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusBadGateway, "unparseable_output", err.Error(), map[string]any{"raw": pe.Raw})
	}
	var re *reasoning.StatusError
	if errors.As(err, &re) {
		return newAPIError(http.StatusBadGateway, "reasoning_unavailable", err.Error(), map[string]any{"status": re.Code})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrForbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):     true,
		path.Join(basePath, "auth/guest"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok"}}, nil
	})
}

func registerGuest(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "guest-login",
		Method:      http.MethodPost,
		Path:        "/auth/guest",
		Summary:     "Sign in as the demo user",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body GuestResponse `json:"body"`
	}, error) {
		g, err := e.Guest(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GuestResponse `json:"body"`
		}{Body: GuestResponse{Token: g.Token, UserID: g.User.ID, User: g.User, HasProfile: g.HasProfile}}, nil
	})
}

func registerScreening(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "evaluate-screening",
		Method:      http.MethodPost,
		Path:        "/screening/evaluate",
		Summary:     "Turn ASRS answers into a cognitive profile",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body ScreeningRequest `json:"body"`
	}) (*struct {
		Body domain.Profile `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Screen(ctx, userID, engine.ScreeningRequest{Answers: input.Body.Answers, Notes: input.Body.Notes})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Profile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profile/{user_id}",
		Summary:     "Latest cognitive profile",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.Profile `json:"body"`
	}, error) {
		userID, authErr := requireSelf(ctx, input.UserID)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Profile(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Profile `json:"body"`
		}{Body: p}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-plan",
		Method:      http.MethodPost,
		Path:        "/plan/generate",
		Summary:     "Generate today's plan",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body PlanRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.GeneratePlan(ctx, userID, engine.PlanRequest{
			BrainState:        input.Body.BrainState,
			Tasks:             input.Body.Tasks,
			TimeWindowMinutes: input.Body.TimeWindowMinutes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "intervene",
		Method:      http.MethodPost,
		Path:        "/plan/intervene",
		Summary:     "Restructure a plan around a stuck task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body InterventionRequest `json:"body"`
	}) (*struct {
		Body InterventionResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.Intervene(ctx, userID, engine.InterventionRequest{
			PlanID:         input.Body.PlanID,
			StuckTaskIndex: input.Body.StuckTaskIndex,
			UserMessage:    input.Body.UserMessage,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InterventionResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerInterventions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "rate-intervention",
		Method:      http.MethodPost,
		Path:        "/interventions/{intervention_id}/feedback",
		Summary:     "Rate an intervention",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InterventionID string          `path:"intervention_id"`
		Body           FeedbackRequest `json:"body"`
	}) (*struct {
		Body domain.Intervention `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		iv, err := e.RateIntervention(ctx, userID, input.InterventionID, input.Body.Rating, input.Body.Feedback)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Intervention `json:"body"`
		}{Body: iv}, nil
	})
}

func registerCheckins(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-checkin",
		Method:        http.MethodPost,
		Path:          "/checkins",
		Summary:       "Submit the daily checkin",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CheckinRequest `json:"body"`
	}) (*struct {
		Body domain.Checkin `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.RecordCheckin(ctx, userID, domain.Checkin{
			Date:           input.Body.Date,
			MoodScore:      input.Body.MoodScore,
			EnergyLevel:    input.Body.EnergyLevel,
			TasksCompleted: input.Body.TasksCompleted,
			TasksTotal:     input.Body.TasksTotal,
			Notes:          input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Checkin `json:"body"`
		}{Body: c}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard/{user_id}",
		Summary:     "Trend, momentum and annotations",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		userID, authErr := requireSelf(ctx, input.UserID)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Dashboard(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: d}, nil
	})
}

func registerPatterns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "detect-patterns",
		Method:      http.MethodPost,
		Path:        "/patterns/detect",
		Summary:     "Detect behavioral patterns",
		Description: "Returns no cards until a week of checkins exists.",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PatternResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.DetectPatterns(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PatternResponse `json:"body"`
		}{Body: PatternResponse{Cards: out.Cards}}, nil
	})
}

func registerJournal(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-journal",
		Method:      http.MethodGet,
		Path:        "/journal/{user_id}",
		Summary:     "Recent pipeline journal entries",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body JournalResponse `json:"body"`
	}, error) {
		userID, authErr := requireSelf(ctx, input.UserID)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Journal(ctx, userID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JournalResponse `json:"body"`
		}{Body: JournalResponse{Items: items}}, nil
	})
}

func registerCognitiveTests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-cognitive-test",
		Method:      http.MethodPost,
		Path:        "/cognitive-tests/save",
		Summary:     "Save a cognitive test result",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body TestResultRequest `json:"body"`
	}) (*struct {
		Body SaveTestResponse `json:"body"`
	}, error) {
		userID, authErr := requireSelf(ctx, input.Body.UserID)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SaveTestResult(ctx, userID, domain.TestResult{
			TestType:       input.Body.TestType,
			Score:          input.Body.Score,
			RawData:        input.Body.RawData,
			Metrics:        input.Body.Metrics,
			Label:          input.Body.Label,
			Interpretation: input.Body.Interpretation,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SaveTestResponse `json:"body"`
		}{Body: SaveTestResponse{TestID: res.ID, Status: "saved"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cognitive-tests",
		Method:      http.MethodGet,
		Path:        "/cognitive-tests/{user_id}",
		Summary:     "Latest result of each cognitive test",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body TestResultsResponse `json:"body"`
	}, error) {
		userID, authErr := requireSelf(ctx, input.UserID)
		if authErr != nil {
			return nil, authErr
		}
		tests, err := e.LatestTestResults(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TestResultsResponse `json:"body"`
		}{Body: TestResultsResponse{Tests: tests}}, nil
	})
}

// Serve runs handler on addr until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
