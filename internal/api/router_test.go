package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/config"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/mock"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/services"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "8000", UseMockData: true},
		CTrader: config.CTraderConfig{
			ClientID:     "app-id",
			ClientSecret: "app-secret",
			RedirectURI:  "http://localhost:8000/api/ctrader/callback",
			StateSecret:  "state-secret",
		},
	}
}

func setupTestRouter(t *testing.T) (http.Handler, *registry.Registry) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := registry.New([]platform.Client{
		mock.NewClient(models.PlatformMT5, logger),
		mock.NewClient(models.PlatformCTrader, logger),
	}, logger)
	router := SetupRouter(reg, nil, services.NewMemoryStateStore(), websocket.NewHub(logger), testConfig(), logger)
	return router, reg
}

func TestHealth(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.MockData)
	assert.Zero(t, body.Accounts)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_ConnectThroughFullStack(t *testing.T) {
	router, reg := setupTestRouter(t)

	data, err := json.Marshal(models.MT5ConnectRequest{
		Name: "Main", Server: "Demo.MT4Server.com", Login: "12345678", Password: "secret",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/mt5/connect", bytes.NewReader(data)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, registry.StateConnected, reg.Status("mt5_12345678").State)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mt5_12345678")
}

func TestRouter_CTraderTest(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/ctrader/test", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "client_id=app-id")
}

func TestRouter_JSONErrors(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPrintRoutes(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/routes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, "GET\t/api/health")
	assert.Contains(t, out, "POST\t/api/mt5/connect")
	assert.Contains(t, out, "GET\t/api/ctrader/callback")
	assert.Contains(t, out, "POST\t/api/accounts/{accountId}/disconnect")
	assert.Contains(t, out, "ANY\t/ws")
	assert.NotContains(t, out, "ANY\t/api\n")
}
