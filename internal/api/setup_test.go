package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farmstand/farmstand/internal/backend"
	"github.com/farmstand/farmstand/internal/config"
	"github.com/farmstand/farmstand/internal/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend either has every object (missing=false) or none of them
// with exec_sql unavailable (missing=true).
type stubBackend struct {
	missing bool
	pingErr error
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubBackend) ExecSQL(ctx context.Context, sql string) error {
	if s.missing {
		return &backend.Error{
			Kind:    backend.KindUndefinedFunction,
			Code:    "PGRST202",
			Message: "Could not find the function public.exec_sql(sql) in the schema cache",
		}
	}
	return nil
}

func (s *stubBackend) Probe(ctx context.Context, table, column string) error {
	if s.missing {
		return &backend.Error{
			Kind:    backend.KindUndefinedTable,
			Code:    "42P01",
			Message: fmt.Sprintf(`relation "public.%s" does not exist`, table),
		}
	}
	return nil
}

func newTestRouter(t *testing.T, be *stubBackend, token string) http.Handler {
	t.Helper()
	runner, err := schema.NewRunner(schema.NewBootstrapper(be, nil, zerolog.Nop()), nil, zerolog.Nop())
	require.NoError(t, err)
	return NewRouter(ServerOptions{
		Config:    &config.Config{AuthToken: token},
		Backend:   be,
		Runner:    runner,
		StartTime: time.Now(),
		Log:       zerolog.Nop(),
	})
}

func TestSetupRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newTestRouter(t, &stubBackend{}, "")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/setup/run", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var report schema.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.True(t, report.Success)
		assert.Len(t, report.Results, len(schema.Migrations))
		assert.Empty(t, report.Failures)
	})

	t.Run("failure_includes_manual_sql", func(t *testing.T) {
		h := newTestRouter(t, &stubBackend{missing: true}, "")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/setup/run", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var report schema.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.False(t, report.Success)
		require.NotEmpty(t, report.Failures)
		assert.Equal(t, "profiles", report.Failures[0].Name)
		assert.Contains(t, report.Failures[0].ManualSQL, "CREATE TABLE IF NOT EXISTS public.profiles")
	})

	t.Run("requires_token", func(t *testing.T) {
		h := newTestRouter(t, &stubBackend{}, "secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/setup/run", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/setup/run", nil)
		req.Header.Set("Authorization", "Bearer secret")
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSetupStatus(t *testing.T) {
	h := newTestRouter(t, &stubBackend{missing: true}, "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/setup/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Migrations []schema.Status `json:"migrations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Migrations, len(schema.Migrations))
	assert.Equal(t, "profiles", body.Migrations[0].Name)
	assert.False(t, body.Migrations[0].Applied)
}

func TestSetupRunOne(t *testing.T) {
	h := newTestRouter(t, &stubBackend{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/setup/migrations/farm_settings", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var outcome schema.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, "farm_settings", outcome.Name)
	assert.True(t, outcome.Success)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/setup/migrations/orders", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupSQL(t *testing.T) {
	h := newTestRouter(t, &stubBackend{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/setup/migrations/deliveries/sql", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "CREATE TABLE IF NOT EXISTS public.deliveries")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/setup/migrations/avatars_bucket/sql", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/setup/migrations/nope/sql", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Run("healthy_without_auth", func(t *testing.T) {
		h := newTestRouter(t, &stubBackend{}, "secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "stub", body.Backend)
		assert.Equal(t, "ok", body.Checks["backend"])
		assert.Equal(t, "not_configured", body.Checks["mqtt"])
	})

	t.Run("backend_down", func(t *testing.T) {
		h := newTestRouter(t, &stubBackend{pingErr: fmt.Errorf("connection refused")}, "")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, &stubBackend{}, "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "farmstand_")
}
