package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/paylynx-policy/app"
	"github.com/upb/paylynx-policy/config"
	"go.uber.org/zap/zaptest"
)

func setupRouter(t *testing.T) (http.Handler, *app.Dependencies) {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: time.Second,
		},
		Auth: config.AuthConfig{AllowUnverified: true},
		Policy: config.PolicyConfig{
			SpendStore:    config.StoreMemory,
			SettingsStore: config.StoreMemory,
			Timezone:      "UTC",
		},
		Audit: config.AuditConfig{
			Enabled:     true,
			Store:       config.StoreMemory,
			BufferSize:  100,
			WorkerCount: 1,
		},
		Observability: config.ObservabilityConfig{LogLevel: "error"},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	return SetupRoutes(deps), deps
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("any-key"))
	require.NoError(t, err)
	return "Bearer " + signed
}

func do(router http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := setupRouter(t)

	t.Run("healthz", func(t *testing.T) {
		w := do(router, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("readyz reports audit and database", func(t *testing.T) {
		w := do(router, http.MethodGet, "/readyz", "", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Data.Status)
		assert.Equal(t, "not_configured", body.Data.Checks["database"])
		assert.Equal(t, "healthy", body.Data.Checks["audit"])
	})
}

func TestReadinessFailsAfterAuditStops(t *testing.T) {
	router, deps := setupRouter(t)
	require.NoError(t, deps.Audit.Stop(time.Second))

	w := do(router, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPolicyRoutes(t *testing.T) {
	router, deps := setupRouter(t)
	token := bearer(t, "user-42")

	t.Run("info is public", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/policy/info", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "TIP-403")
	})

	t.Run("check requires auth", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/v1/policy/check", "", `{"amount":"10"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("allowed payment", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/v1/policy/check", token, `{"amount":"10","recipient":"0xabc"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"allowed":true`)
	})

	t.Run("blocked payment", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/v1/policy/check", token, `{"amount":"2000"}`)
		require.Equal(t, http.StatusForbidden, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "payment_blocked", body["error"])
		assert.Equal(t, "max_single_payment", body["blocked_by"])
		assert.Equal(t, true, body["tip403_compliant"])
	})

	t.Run("limits reflect spend", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/policy/limits", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"daily_spent":"10"`)
	})

	t.Run("settings round trip", func(t *testing.T) {
		w := do(router, http.MethodPut, "/api/v1/policy/settings", token, fullSettings)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(router, http.MethodGet, "/api/v1/policy/settings", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"max_single_payment":"50"`)
	})

	t.Run("invalid settings rejected", func(t *testing.T) {
		w := do(router, http.MethodPut, "/api/v1/policy/settings", token, `{"night_hour_start":24}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("decisions listed newest first", func(t *testing.T) {
		require.Eventually(t, func() bool {
			logs, err := deps.Decisions.GetByUserID(context.Background(), "user-42", 10, 0)
			return err == nil && len(logs) >= 2
		}, time.Second, 10*time.Millisecond)

		w := do(router, http.MethodGet, "/api/v1/policy/decisions?limit=10", token, "")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data []map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.GreaterOrEqual(t, len(body.Data), 2)
	})
}

const fullSettings = `{
	"enabled": true,
	"max_single_payment": "50",
	"max_daily_limit": "5000",
	"night_time_enabled": true,
	"night_max_payment": "100",
	"night_hour_start": 22,
	"night_hour_end": 6
}`

func TestCORS(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/policy/check", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodGet, "/nonexistent", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"endpoint not found"}`, w.Body.String())
}
