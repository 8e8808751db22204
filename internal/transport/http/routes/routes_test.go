package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modmarket/auth-service/internal/infra/config"
	"github.com/modmarket/auth-service/internal/infra/security"
	httproutes "github.com/modmarket/auth-service/internal/transport/http/routes"
)

type pingChecker struct {
	err error
}

func (p pingChecker) Ping(ctx context.Context) error {
	return p.err
}

func newTestDependencies(t *testing.T) httproutes.Dependencies {
	t.Helper()

	gin.SetMode(gin.TestMode)

	manager, err := security.NewJWTManager("routes-test-secret", "auth-service", time.Minute)
	if err != nil {
		t.Fatalf("failed to build jwt manager: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	return httproutes.Dependencies{
		Config:     cfg,
		Logger:     logger,
		JWTManager: manager,
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := httproutes.Register(newTestDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessReportsDegradedDatabase(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Database = pingChecker{err: errors.New("connection refused")}

	r := httproutes.Register(deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Status)
	}

	if body.Checks["database"] != "connection refused" {
		t.Fatalf("expected database check failure, got %v", body.Checks)
	}
}

func TestAdminRoutesRequireAuthentication(t *testing.T) {
	r := httproutes.Register(newTestDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestMetricsEndpointIsExposed(t *testing.T) {
	r := httproutes.Register(newTestDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}
