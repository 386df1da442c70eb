package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "PORT", "USE_MOCK_DATA", "ALLOW_ORIGINS", "POSTGRES_URL", "REDIS_URL",
	"METAAPI_TOKEN", "META_API_TOKEN", "METAAPI_PROVISIONING_URL", "METAAPI_CLIENT_URL",
	"METAAPI_REGION", "METAAPI_RATE_LIMIT", "METAAPI_UNDEPLOY_ON_DISCONNECT",
	"CTRADER_CLIENT_ID", "CTRADER_CLIENT_SECRET", "CTRADER_REDIRECT_URI", "CTRADER_CONNECT_URL",
	"OAUTH_STATE_SECRET", "CONNECT_TIMEOUT", "SWEEP_INTERVAL", "LOG_LEVEL", "LOG_FORMAT",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

// clearEnv blanks every variable Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, ":8000", cfg.Server.Addr())
	assert.False(t, cfg.Server.UseMockData)
	assert.Equal(t, []string{"*"}, cfg.Server.Origins())
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.MetaAPI.Token)
	assert.Equal(t, float64(10), cfg.MetaAPI.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Registry.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.Registry.SweepInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.CTrader.Configured())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("USE_MOCK_DATA", "true")
	t.Setenv("META_API_TOKEN", "legacy-token")
	t.Setenv("METAAPI_UNDEPLOY_ON_DISCONNECT", "1")
	t.Setenv("CTRADER_CLIENT_ID", "client")
	t.Setenv("CTRADER_CLIENT_SECRET", "secret")
	t.Setenv("CONNECT_TIMEOUT", "45")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("ALLOW_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Server.UseMockData)
	assert.Equal(t, "legacy-token", cfg.MetaAPI.Token)
	assert.True(t, cfg.MetaAPI.UndeployOnDisconnect)
	assert.True(t, cfg.CTrader.Configured())
	assert.Empty(t, cfg.CTrader.StateSecret, "the client secret is never reused to sign state")
	assert.Equal(t, 45*time.Second, cfg.Registry.ConnectTimeout)
	assert.Equal(t, 90*time.Second, cfg.Registry.SweepInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.Origins())

	t.Setenv("METAAPI_TOKEN", "current-token")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "current-token", cfg.MetaAPI.Token)
}

func TestLoad_FileUnderEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
metaapi:
  token: file-token
  region: london
  rate_limit: 2.5
ctrader:
  client_id: file-client
registry:
  connect_timeout: 1m
logging:
  level: debug
  format: json
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port)
	assert.Equal(t, "file-token", cfg.MetaAPI.Token)
	assert.Equal(t, "london", cfg.MetaAPI.Region)
	assert.Equal(t, 2.5, cfg.MetaAPI.RateLimit)
	assert.Equal(t, "file-client", cfg.CTrader.ClientID)
	assert.Equal(t, time.Minute, cfg.Registry.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.Registry.SweepInterval)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"USE_MOCK_DATA", "sometimes"},
		{"METAAPI_RATE_LIMIT", "fast"},
		{"CONNECT_TIMEOUT", "soon"},
		{"CONFIG_FILE", "/does/not/exist.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			if tt.key != "CONFIG_FILE" {
				assert.Contains(t, err.Error(), tt.key)
			}
		})
	}
}

func TestLoad_StateSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("CTRADER_CLIENT_SECRET", "secret")
	t.Setenv("OAUTH_STATE_SECRET", "signing-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "signing-key", cfg.CTrader.StateSecret)
	assert.Equal(t, "secret", cfg.CTrader.ClientSecret)
}
