package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/agent/subagent"
	"github.com/wrp1979/llama-agent/internal/approval"
	"github.com/wrp1979/llama-agent/internal/config"
	"github.com/wrp1979/llama-agent/internal/llm"
	"github.com/wrp1979/llama-agent/internal/logging"
	"github.com/wrp1979/llama-agent/internal/metrics"
	"github.com/wrp1979/llama-agent/internal/obs"
	"github.com/wrp1979/llama-agent/internal/session"
	"github.com/wrp1979/llama-agent/internal/tools"
)

func TestSSEEventName_MapsEveryKindToSnakeCase(t *testing.T) {
	cases := map[ports.EventKind]string{
		ports.EventTextDelta:         "text_delta",
		ports.EventReasoningDelta:    "reasoning_delta",
		ports.EventToolStart:         "tool_start",
		ports.EventToolResult:        "tool_result",
		ports.EventPermissionAsk:     "permission_required",
		ports.EventPermissionResolve: "permission_resolved",
		ports.EventIterationStart:   "iteration_start",
		ports.EventCompleted:        "completed",
		ports.EventError:            "error",
	}
	for kind, want := range cases {
		require.Equal(t, want, sseEventName(kind))
	}
}

func TestSSEEventName_UnknownKindFallsBackToEvent(t *testing.T) {
	require.Equal(t, "event", sseEventName(ports.EventKind("unknown_kind")))
}

func newTestRuntimeForServe(t *testing.T) (*runtime, *session.Manager) {
	gin.SetMode(gin.TestMode)
	reg := tools.New(logging.Nop())
	scripted := &llm.Scripted{}
	perm := approval.New(t.TempDir(), true)
	tracerProv, err := obs.NewProvider(context.Background(), obs.TracingConfig{Enabled: false})
	require.NoError(t, err)
	runner := subagent.New(reg, scripted, perm, nil, tracerProv.Tracer(), logging.Nop(), nil)
	metricsReg := metrics.New()

	rt := &runtime{
		cfg:        config.Config{WorkingDir: t.TempDir(), MaxIterations: 5, ToolTimeoutMS: 1000},
		log:        logging.Nop(),
		registry:   reg,
		llmClient:  scripted,
		tracerProv: tracerProv,
		runner:     runner,
		metricsReg: metricsReg,
		permission: perm,
	}
	mgr := session.New(reg, scripted, runner, tracerProv.Tracer(), logging.Nop(), metricsReg)
	return rt, mgr
}

func TestNewRouter_HealthCheck(t *testing.T) {
	rt, mgr := newTestRuntimeForServe(t)
	router := newRouter(rt, mgr)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestCreateSessionHandler_CreatesAndReturnsID(t *testing.T) {
	rt, mgr := newTestRuntimeForServe(t)
	router := newRouter(rt, mgr)

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["session_id"])
}

func TestGetSessionHandler_UnknownIDReturns404(t *testing.T) {
	rt, mgr := newTestRuntimeForServe(t)
	router := newRouter(rt, mgr)

	req := httptest.NewRequest(http.MethodGet, "/v1/agent/session/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListToolsHandler_ListsRegisteredTools(t *testing.T) {
	rt, mgr := newTestRuntimeForServe(t)
	router := newRouter(rt, mgr)

	req := httptest.NewRequest(http.MethodGet, "/v1/agent/tools", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
