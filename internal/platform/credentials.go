package platform

import (
	"fmt"
	"strings"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
)

// Credentials are platform specific secrets. They live only in process memory.
type Credentials interface {
	Platform() models.Platform
	Validate() error
	// Identity returns the non-secret parts used for bookkeeping and logs.
	Identity() Identity
}

// Identity is the non-secret description of an account's credentials.
type Identity struct {
	Login       string
	Server      string
	Environment string
}

// MT5Credentials authenticate an MT5 account through the cloud terminal.
type MT5Credentials struct {
	Login    string
	Password string
	Server   string
}

func (MT5Credentials) Platform() models.Platform { return models.PlatformMT5 }

func (c MT5Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Login) == "" {
		missing = append(missing, "login")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(c.Server) == "" {
		missing = append(missing, "server")
	}
	if len(missing) > 0 {
		return validationError("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c MT5Credentials) Identity() Identity {
	return Identity{Login: c.Login, Server: c.Server}
}

// String never prints the password.
func (c MT5Credentials) String() string {
	return fmt.Sprintf("mt5 login=%s server=%s", c.Login, c.Server)
}

// Environment selects the cTrader demo or live infrastructure.
type Environment string

const (
	EnvironmentDemo Environment = "demo"
	EnvironmentLive Environment = "live"
)

// ParseEnvironment accepts demo or live, case-insensitively. An empty value means demo.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(EnvironmentDemo):
		return EnvironmentDemo, nil
	case string(EnvironmentLive):
		return EnvironmentLive, nil
	default:
		return "", validationError("environment must be demo or live, got %q", s)
	}
}

// CTraderCredentials authenticate a cTrader account. Either AuthCode (with RedirectURI)
// or AccessToken must be present.
type CTraderCredentials struct {
	ClientID     string
	ClientSecret string
	Environment  Environment
	AuthCode     string
	RedirectURI  string
	AccessToken  string
	RefreshToken string
	// TraderAccountID optionally pins the cTrader trading account to bind.
	TraderAccountID int64
}

func (CTraderCredentials) Platform() models.Platform { return models.PlatformCTrader }

func (c CTraderCredentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "clientId")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "clientSecret")
	}
	if len(missing) > 0 {
		return validationError("missing required fields: %s", strings.Join(missing, ", "))
	}
	if c.Environment != EnvironmentDemo && c.Environment != EnvironmentLive {
		return validationError("environment must be demo or live, got %q", c.Environment)
	}
	if c.AuthCode == "" && c.AccessToken == "" {
		return validationError("an authorization code or access token is required")
	}
	return nil
}

func (c CTraderCredentials) Identity() Identity {
	return Identity{Login: c.ClientID, Environment: string(c.Environment)}
}

func (c CTraderCredentials) String() string {
	return fmt.Sprintf("ctrader client=%s env=%s", c.ClientID, c.Environment)
}
