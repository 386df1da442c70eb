package ctrader

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
)

var (
	_ platform.Client = (*Client)(nil)
	_ platform.Prober = (*Client)(nil)
)

// Client is the cTrader platform client
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     *logrus.Entry
}

// Option configures a Client
type Option func(*Client)

// WithEndpoints overrides the cTrader base URLs.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

// WithHTTPClient sets the HTTP client used for token exchange and REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a cTrader client
func NewClient(logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		endpoints:  DefaultEndpoints(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.WithField("component", "ctrader"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Platform() models.Platform { return models.PlatformCTrader }

// Endpoints returns the configured base URLs.
func (c *Client) Endpoints() Endpoints { return c.endpoints }

// Session is an authorized cTrader trading account
type Session struct {
	env     platform.Environment
	account tradingAccount

	mu        sync.RWMutex
	token     *oauth2.Token
	connected bool
}

func (s *Session) Platform() models.Platform { return models.PlatformCTrader }

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// TraderAccountID is the cTrader id of the bound trading account.
func (s *Session) TraderAccountID() int64 { return s.account.AccountID }

func (s *Session) accessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.token == nil {
		return "", false
	}
	return s.token.AccessToken, true
}

func (s *Session) close() {
	s.mu.Lock()
	s.connected = false
	s.token = nil
	s.mu.Unlock()
}

// Connect exchanges the authorization code (unless an access token is supplied) and binds
// the first trading account of the requested environment.
func (c *Client) Connect(ctx context.Context, creds platform.Credentials) (platform.Session, error) {
	ctCreds, ok := creds.(platform.CTraderCredentials)
	if !ok {
		return nil, platform.NewConnectError(models.PlatformCTrader, platform.ErrInvalidCredentials, "expected ctrader credentials, got %T", creds)
	}
	if ctCreds.ClientID == "" || ctCreds.ClientSecret == "" {
		return nil, platform.NewConnectError(models.PlatformCTrader, platform.ErrServiceNotInitialized, "ctrader client id and secret are not configured")
	}
	if err := ctCreds.Validate(); err != nil {
		return nil, err
	}

	log := c.logger.WithFields(logrus.Fields{"client_id": ctCreds.ClientID, "environment": ctCreds.Environment})

	token := &oauth2.Token{AccessToken: ctCreds.AccessToken, RefreshToken: ctCreds.RefreshToken}
	if ctCreds.AccessToken == "" {
		oauth := NewOAuth(ctCreds.ClientID, ctCreds.ClientSecret, ctCreds.RedirectURI, ctCreds.Environment, c.endpoints, c.httpClient)
		exchanged, err := oauth.Exchange(ctx, ctCreds.AuthCode)
		if err != nil {
			return nil, c.connectError(ctx, err)
		}
		token = exchanged
		log.Info("cTrader authorization code exchanged")
	}

	accounts, err := c.tradingAccounts(ctx, token.AccessToken)
	if err != nil {
		return nil, c.connectError(ctx, err)
	}

	wantLive := ctCreds.Environment == platform.EnvironmentLive
	for _, acc := range accounts {
		if acc.Deleted || acc.Live != wantLive {
			continue
		}
		if ctCreds.TraderAccountID != 0 && acc.AccountID != ctCreds.TraderAccountID {
			continue
		}
		log.WithField("trader_account_id", acc.AccountID).Info("cTrader account bound")
		return &Session{env: ctCreds.Environment, account: acc, token: token, connected: true}, nil
	}

	return nil, platform.NewConnectError(models.PlatformCTrader, platform.ErrInvalidCredentials,
		"no %s trading account is available to this authorization", ctCreds.Environment)
}

func (c *Client) connectError(ctx context.Context, err error) *platform.ConnectError {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		return platform.NewConnectError(models.PlatformCTrader, platform.ErrInvalidCredentials, "%v", tokenErr)
	}
	var apiErr *restError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return platform.NewConnectError(models.PlatformCTrader, platform.ErrInvalidCredentials, "%v", apiErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return platform.NewConnectError(models.PlatformCTrader, platform.ErrSynchronizationTimeout, "%v", err)
	}
	return platform.NewConnectError(models.PlatformCTrader, platform.ErrRemoteUnavailable, "%v", err)
}

func (c *Client) session(s platform.Session) (*Session, string, error) {
	sess, ok := s.(*Session)
	if !ok || sess == nil {
		return nil, "", platform.NotConnected(models.PlatformCTrader)
	}
	token, ok := sess.accessToken()
	if !ok {
		return nil, "", platform.NotConnected(models.PlatformCTrader)
	}
	return sess, token, nil
}

// AccountInfo re-reads the bound trading account. The Connect API reports balance only,
// so equity and free margin equal the balance and margin is zero.
func (c *Client) AccountInfo(ctx context.Context, s platform.Session) (models.AccountSnapshot, error) {
	sess, token, err := c.session(s)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	accounts, err := c.tradingAccounts(ctx, token)
	if err != nil {
		return models.AccountSnapshot{}, platform.RemoteCallFailed(models.PlatformCTrader, "trading accounts", err)
	}

	for _, acc := range accounts {
		if acc.AccountID != sess.account.AccountID {
			continue
		}
		balance := money(acc.Balance, acc.digits())
		broker := acc.BrokerTitle
		if broker == "" {
			broker = acc.BrokerName
		}
		return models.AccountSnapshot{
			Platform:    models.PlatformCTrader,
			Broker:      broker,
			Name:        acc.TraderLogin,
			Login:       strconv.FormatInt(acc.AccountNumber, 10),
			Server:      string(sess.env),
			Currency:    acc.DepositCurrency,
			Balance:     balance,
			Equity:      balance,
			Margin:      decimal.Zero,
			FreeMargin:  balance,
			MarginLevel: decimal.Zero,
			Leverage:    int(acc.LeverageInCents / 100),
			Timestamp:   time.Now().UTC(),
		}, nil
	}
	return models.AccountSnapshot{}, platform.RemoteCallFailed(models.PlatformCTrader, "trading accounts",
		errors.New("bound account is no longer listed"))
}

// History reads the deals executed in [start, end] and pairs them into trades
func (c *Client) History(ctx context.Context, s platform.Session, start, end time.Time) ([]models.TradeHistoryRecord, error) {
	sess, token, err := c.session(s)
	if err != nil {
		return nil, err
	}
	deals, err := c.deals(ctx, token, sess.account.AccountID, start, end)
	if err != nil {
		return nil, platform.RemoteCallFailed(models.PlatformCTrader, "deals", err)
	}
	return pairDeals(deals, sess.account.digits()), nil
}

// Probe marks the session dropped once its access token has expired.
func (c *Client) Probe(ctx context.Context, s platform.Session) error {
	sess, ok := s.(*Session)
	if !ok || sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.connected && sess.token != nil && !sess.token.Expiry.IsZero() && time.Now().After(sess.token.Expiry) {
		c.logger.WithField("trader_account_id", sess.account.AccountID).Warn("cTrader access token expired")
		sess.connected = false
	}
	return nil
}

// Disconnect drops the token from the session
func (c *Client) Disconnect(ctx context.Context, s platform.Session) error {
	if sess, ok := s.(*Session); ok && sess != nil {
		sess.close()
	}
	return nil
}
