package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "8000"
	defaultConnectTimeout = 30 * time.Second
	defaultSweepInterval  = time.Minute
	defaultRateLimit      = 10
	defaultRedirectURI    = "http://localhost:8000/api/ctrader/callback"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	MetaAPI   MetaAPIConfig   `yaml:"metaapi"`
	CTrader   CTraderConfig   `yaml:"ctrader"`
	Registry  RegistryConfig  `yaml:"registry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port         string `yaml:"port"`
	UseMockData  bool   `yaml:"use_mock_data"`
	AllowOrigins string `yaml:"allow_origins"`
}

// Addr renders the listen address.
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

// Origins splits AllowOrigins on commas; empty means any origin.
func (s ServerConfig) Origins() []string {
	if strings.TrimSpace(s.AllowOrigins) == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// DatabaseConfig is optional; an empty URL disables account bookkeeping.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig is optional; an empty URL keeps OAuth state nonces in memory.
type RedisConfig struct {
	URL string `yaml:"url"`
}

type MetaAPIConfig struct {
	Token                string  `yaml:"token"`
	ProvisioningURL      string  `yaml:"provisioning_url"`
	ClientURL            string  `yaml:"client_url"`
	Region               string  `yaml:"region"`
	RateLimit            float64 `yaml:"rate_limit"`
	UndeployOnDisconnect bool    `yaml:"undeploy_on_disconnect"`
}

type CTraderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	ConnectURL   string `yaml:"connect_url"`
	StateSecret  string `yaml:"state_secret"`
}

// Configured reports whether a client id and secret are available server side.
func (c CTraderConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type RegistryConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: defaultPort},
		MetaAPI: MetaAPIConfig{
			RateLimit: defaultRateLimit,
		},
		CTrader: CTraderConfig{
			RedirectURI: defaultRedirectURI,
		},
		Registry: RegistryConfig{
			ConnectTimeout: defaultConnectTimeout,
			SweepInterval:  defaultSweepInterval,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load returns application configuration. Values come from the YAML file named by
// CONFIG_FILE when set, then from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Server.Port = getEnvWithDefault("PORT", cfg.Server.Port)
	if cfg.Server.UseMockData, err = getBool("USE_MOCK_DATA", cfg.Server.UseMockData); err != nil {
		return err
	}
	cfg.Server.AllowOrigins = getEnvWithDefault("ALLOW_ORIGINS", cfg.Server.AllowOrigins)

	cfg.Database.URL = getEnvWithDefault("POSTGRES_URL", cfg.Database.URL)
	cfg.Redis.URL = getEnvWithDefault("REDIS_URL", cfg.Redis.URL)

	cfg.MetaAPI.Token = getEnvWithDefault("METAAPI_TOKEN", getEnvWithDefault("META_API_TOKEN", cfg.MetaAPI.Token))
	cfg.MetaAPI.ProvisioningURL = getEnvWithDefault("METAAPI_PROVISIONING_URL", cfg.MetaAPI.ProvisioningURL)
	cfg.MetaAPI.ClientURL = getEnvWithDefault("METAAPI_CLIENT_URL", cfg.MetaAPI.ClientURL)
	cfg.MetaAPI.Region = getEnvWithDefault("METAAPI_REGION", cfg.MetaAPI.Region)
	if cfg.MetaAPI.RateLimit, err = getFloat("METAAPI_RATE_LIMIT", cfg.MetaAPI.RateLimit); err != nil {
		return err
	}
	if cfg.MetaAPI.UndeployOnDisconnect, err = getBool("METAAPI_UNDEPLOY_ON_DISCONNECT", cfg.MetaAPI.UndeployOnDisconnect); err != nil {
		return err
	}

	cfg.CTrader.ClientID = getEnvWithDefault("CTRADER_CLIENT_ID", cfg.CTrader.ClientID)
	cfg.CTrader.ClientSecret = getEnvWithDefault("CTRADER_CLIENT_SECRET", cfg.CTrader.ClientSecret)
	cfg.CTrader.RedirectURI = getEnvWithDefault("CTRADER_REDIRECT_URI", cfg.CTrader.RedirectURI)
	cfg.CTrader.ConnectURL = getEnvWithDefault("CTRADER_CONNECT_URL", cfg.CTrader.ConnectURL)
	cfg.CTrader.StateSecret = getEnvWithDefault("OAUTH_STATE_SECRET", cfg.CTrader.StateSecret)

	if cfg.Registry.ConnectTimeout, err = getDuration("CONNECT_TIMEOUT", cfg.Registry.ConnectTimeout); err != nil {
		return err
	}
	if cfg.Registry.SweepInterval, err = getDuration("SWEEP_INTERVAL", cfg.Registry.SweepInterval); err != nil {
		return err
	}

	cfg.Logging.Level = getEnvWithDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnvWithDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Telemetry.OTLPEndpoint = getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to float: %w", key, value, err)
	}
	return parsed, nil
}

// getDuration accepts Go durations ("45s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to duration: %w", key, value, err)
	}
	return parsed, nil
}
