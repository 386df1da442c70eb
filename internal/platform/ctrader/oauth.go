// Package ctrader connects cTrader accounts through the Open API OAuth flow and the
// Connect REST API.
package ctrader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
)

const (
	// DemoBaseURL serves OAuth for demo accounts
	DemoBaseURL = "https://demo-openapi.ctrader.com"
	// LiveBaseURL serves OAuth for live accounts
	LiveBaseURL = "https://live-openapi.ctrader.com"
	// DefaultConnectURL serves the account REST API
	DefaultConnectURL = "https://api.spotware.com"

	// Scope requested during authorization
	Scope = "trading"
)

// Endpoints are the base URLs the cTrader integration talks to.
type Endpoints struct {
	Demo    string
	Live    string
	Connect string
}

// DefaultEndpoints returns the production cTrader endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{Demo: DemoBaseURL, Live: LiveBaseURL, Connect: DefaultConnectURL}
}

// Auth returns the OAuth base URL for env.
func (e Endpoints) Auth(env platform.Environment) string {
	if env == platform.EnvironmentLive {
		return strings.TrimRight(e.Live, "/")
	}
	return strings.TrimRight(e.Demo, "/")
}

// TokenError is a rejected code-for-token exchange.
type TokenError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ctrader token exchange: status %d: %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("ctrader token exchange: status %d: %s", e.StatusCode, e.Description)
}

// OAuth runs the authorization-code flow for one cTrader application.
type OAuth struct {
	config     oauth2.Config
	httpClient *http.Client
}

// NewOAuth configures the flow for env. redirectURI must match the one registered with the
// application.
func NewOAuth(clientID, clientSecret, redirectURI string, env platform.Environment, endpoints Endpoints, httpClient *http.Client) *OAuth {
	base := endpoints.Auth(env)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuth{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/v1/auth/authorize",
				TokenURL:  base + "/v1/auth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// AuthorizeURL is where the user grants access. state is echoed back to the callback.
func (o *OAuth) AuthorizeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

// tokenResponse is the token endpoint body. cTrader answers in camelCase and reports
// failures through errorCode, sometimes with a 200 status.
type tokenResponse struct {
	AccessToken      string  `json:"accessToken"`
	AccessTokenSnake string  `json:"access_token"`
	TokenType        string  `json:"tokenType"`
	ExpiresIn        int64   `json:"expiresIn"`
	RefreshToken     string  `json:"refreshToken"`
	ErrorCode        *string `json:"errorCode"`
	Description      *string `json:"description"`
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {o.config.ClientID},
		"client_secret": {o.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {o.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		tokenErr := &TokenError{StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(body))}
		if decodeErr == nil && tr.ErrorCode != nil {
			tokenErr.Code = *tr.ErrorCode
			if tr.Description != nil {
				tokenErr.Description = *tr.Description
			}
		}
		return nil, tokenErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode token response: %w", decodeErr)
	}
	if tr.ErrorCode != nil && *tr.ErrorCode != "" {
		tokenErr := &TokenError{StatusCode: resp.StatusCode, Code: *tr.ErrorCode}
		if tr.Description != nil {
			tokenErr.Description = *tr.Description
		}
		return nil, tokenErr
	}

	access := tr.AccessToken
	if access == "" {
		access = tr.AccessTokenSnake
	}
	if access == "" {
		return nil, &TokenError{StatusCode: resp.StatusCode, Description: "response carried no access token"}
	}

	token := &oauth2.Token{
		AccessToken:  access,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}
