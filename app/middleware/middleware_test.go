package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/amirphl/counter-app/app/dto"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAPIKeyMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	guard := NewAPIKeyMiddleware("X-API-Key", []string{"admin-key-0000000001", "admin-key-0000000002"}, zap.New(core))

	app := fiber.New()
	app.Get("/admin", guard.Require(), func(c fiber.Ctx) error {
		return c.SendString("ok")
	})

	tests := []struct {
		name   string
		key    string
		status int
		code   string
	}{
		{name: "missing", key: "", status: fiber.StatusUnauthorized, code: "MISSING_API_KEY"},
		{name: "wrong", key: "admin-key-0000000003", status: fiber.StatusUnauthorized, code: "INVALID_API_KEY"},
		{name: "prefix of valid key", key: "admin-key", status: fiber.StatusUnauthorized, code: "INVALID_API_KEY"},
		{name: "first key", key: "admin-key-0000000001", status: fiber.StatusOK},
		{name: "second key", key: "admin-key-0000000002", status: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			if tt.code == "" {
				assert.Equal(t, "ok", string(body))
				assert.Empty(t, resp.Header.Get(fiber.HeaderWWWAuthenticate))
				return
			}

			var env struct {
				Success bool            `json:"success"`
				Error   dto.ErrorDetail `json:"error"`
			}
			require.NoError(t, json.Unmarshal(body, &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, `ApiKey realm="admin"`, resp.Header.Get(fiber.HeaderWWWAuthenticate))
		})
	}

	// only wrong keys are logged
	assert.Equal(t, 2, logs.FilterMessage("rejected admin request").Len())
}

func TestAPIKeyMiddlewareWithoutKeys(t *testing.T) {
	guard := NewAPIKeyMiddleware("X-API-Key", nil, zap.NewNop())
	app := fiber.New()
	app.Get("/admin", guard.Require(), func(c fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/items/:id", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/broken", func(c fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "nope")
	})

	okLabels := prometheus.Labels{"method": "GET", "route": "/items/:id", "status": "204"}
	errLabels := prometheus.Labels{"method": "GET", "route": "/broken", "status": "418"}
	okBefore := testutil.ToFloat64(httpRequestsTotal.With(okLabels))
	errBefore := testutil.ToFloat64(httpRequestsTotal.With(errLabels))

	for _, path := range []string{"/items/1", "/items/2", "/broken"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, okBefore+2, testutil.ToFloat64(httpRequestsTotal.With(okLabels)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(httpRequestsTotal.With(errLabels)))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpInFlight))
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(AccessLog(zap.New(core), func(path string) bool { return path == "/health" }))
	app.Get("/health", func(c fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/ok", func(c fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/fail", func(c fiber.Ctx) error { return fiber.ErrInternalServerError })

	for _, path := range []string{"/health", "/ok", "/fail"} {
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		req.Header.Set(fiber.HeaderUserAgent, "agent"+path)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	entries := logs.All()
	require.Len(t, entries, 2)

	// fields of earlier entries survive later requests reusing the buffers
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/ok", fields["path"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "agent/ok", fields["user_agent"])
	assert.Equal(t, int64(200), fields["status"])
	assert.NotEmpty(t, fields["request_id"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	fields = entries[1].ContextMap()
	assert.Equal(t, "/fail", fields["path"])
	assert.Equal(t, "agent/fail", fields["user_agent"])
	assert.Equal(t, int64(500), fields["status"])
	assert.NotEqual(t, entries[0].ContextMap()["request_id"], fields["request_id"])
}
