// Package mt5 connects MetaTrader 5 accounts through the MetaApi cloud terminal.
package mt5

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/metaapi"
)

// API is the part of the MetaApi client the MT5 platform needs.
type API interface {
	FindAccount(ctx context.Context, login, server string) (*metaapi.Account, error)
	CreateAccount(ctx context.Context, acc metaapi.NewAccount) (*metaapi.Account, error)
	GetAccount(ctx context.Context, id string) (*metaapi.Account, error)
	Deploy(ctx context.Context, id string) error
	Undeploy(ctx context.Context, id string) error
	WaitDeployed(ctx context.Context, id string) (*metaapi.Account, error)
	WaitSynchronized(ctx context.Context, id string) (*metaapi.Account, error)
	AccountInformation(ctx context.Context, id string) (*metaapi.AccountInformation, error)
	DealsByTimeRange(ctx context.Context, id string, start, end time.Time) ([]metaapi.Deal, error)
	Positions(ctx context.Context, id string) ([]metaapi.Position, error)
}

var _ API = (*metaapi.Client)(nil)

var (
	_ platform.Client         = (*Client)(nil)
	_ platform.PositionLister = (*Client)(nil)
	_ platform.Prober         = (*Client)(nil)
)

// Client is the MT5 platform client
type Client struct {
	api                  API
	undeployOnDisconnect bool
	logger               *logrus.Entry
}

// Option configures a Client
type Option func(*Client)

// WithUndeployOnDisconnect undeploys the remote terminal when a session is disconnected.
func WithUndeployOnDisconnect(undeploy bool) Option {
	return func(c *Client) { c.undeployOnDisconnect = undeploy }
}

// NewClient creates an MT5 client. A nil api yields a client whose Connect fails with
// ErrServiceNotInitialized, which is how a missing MetaApi token surfaces.
func NewClient(api API, logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		api:    api,
		logger: logger.WithField("component", "mt5"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Platform() models.Platform { return models.PlatformMT5 }

// Session is a connected MT5 account
type Session struct {
	remoteID string
	login    string
	server   string
	name     string

	mu        sync.RWMutex
	connected bool
}

func (s *Session) Platform() models.Platform { return models.PlatformMT5 }

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// RemoteID is the MetaApi account id backing the session.
func (s *Session) RemoteID() string { return s.remoteID }

func (s *Session) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Connect resolves or creates the MetaApi account, deploys it and waits for the terminal
// to connect to the broker.
func (c *Client) Connect(ctx context.Context, creds platform.Credentials) (platform.Session, error) {
	mt5Creds, ok := creds.(platform.MT5Credentials)
	if !ok {
		return nil, platform.NewConnectError(models.PlatformMT5, platform.ErrInvalidCredentials, "expected mt5 credentials, got %T", creds)
	}
	if err := mt5Creds.Validate(); err != nil {
		return nil, err
	}
	if c.api == nil {
		return nil, platform.NewConnectError(models.PlatformMT5, platform.ErrServiceNotInitialized, "metaapi token is not configured")
	}

	log := c.logger.WithFields(logrus.Fields{"login": mt5Creds.Login, "server": mt5Creds.Server})

	acc, err := c.api.FindAccount(ctx, mt5Creds.Login, mt5Creds.Server)
	if err != nil {
		return nil, c.connectError(ctx, platform.ErrRemoteUnavailable, err)
	}

	if acc == nil {
		log.Info("Creating MetaApi account")
		acc, err = c.api.CreateAccount(ctx, metaapi.NewAccount{
			Name:     "MT5 " + mt5Creds.Login,
			Login:    mt5Creds.Login,
			Password: mt5Creds.Password,
			Server:   mt5Creds.Server,
		})
		if err != nil {
			return nil, c.connectError(ctx, platform.ErrRemoteAccountCreationFailed, err)
		}
	}

	if !acc.Deployed() {
		log.WithField("state", acc.State).Info("Deploying MetaApi account")
		if err := c.api.Deploy(ctx, acc.ID); err != nil {
			return nil, c.connectError(ctx, platform.ErrDeploymentFailed, err)
		}
	}

	if acc.State != metaapi.StateDeployed {
		if _, err := c.api.WaitDeployed(ctx, acc.ID); err != nil {
			return nil, c.connectError(ctx, platform.ErrDeploymentFailed, err)
		}
	}

	log.Info("Waiting for terminal synchronization")
	if _, err := c.api.WaitSynchronized(ctx, acc.ID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, platform.NewConnectError(models.PlatformMT5, platform.ErrSynchronizationTimeout, "terminal did not connect to %s: %v", mt5Creds.Server, err)
		}
		return nil, c.connectError(ctx, platform.ErrRemoteUnavailable, err)
	}

	log.WithField("remote_id", acc.ID).Info("MT5 account synchronized")
	return &Session{
		remoteID:  acc.ID,
		login:     mt5Creds.Login,
		server:    mt5Creds.Server,
		name:      acc.Name,
		connected: true,
	}, nil
}

// connectError maps a MetaApi failure onto the connect taxonomy. fallback is the kind for
// the step that failed.
func (c *Client) connectError(ctx context.Context, fallback error, err error) *platform.ConnectError {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		kind := platform.ErrSynchronizationTimeout
		if fallback == platform.ErrDeploymentFailed {
			kind = platform.ErrDeploymentFailed
		}
		return platform.NewConnectError(models.PlatformMT5, kind, "%v", err)
	}
	if apiErr, ok := metaapi.AsAPIError(err); ok {
		if apiErr.Unauthorized() {
			return platform.NewConnectError(models.PlatformMT5, platform.ErrServiceNotInitialized, "metaapi rejected the token: %s", apiErr.Message)
		}
		if apiErr.StatusCode == http.StatusBadRequest && mentionsCredentials(apiErr.Message) {
			return platform.NewConnectError(models.PlatformMT5, platform.ErrInvalidCredentials, "%s", apiErr.Message)
		}
	}
	return platform.NewConnectError(models.PlatformMT5, fallback, "%v", err)
}

func mentionsCredentials(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "password") || strings.Contains(msg, "login") || strings.Contains(msg, "e_auth")
}

func (c *Client) session(s platform.Session) (*Session, error) {
	sess, ok := s.(*Session)
	if !ok || sess == nil || !sess.Connected() {
		return nil, platform.NotConnected(models.PlatformMT5)
	}
	if c.api == nil {
		return nil, platform.NotConnected(models.PlatformMT5)
	}
	return sess, nil
}

// AccountInfo reads a fresh snapshot from the terminal
func (c *Client) AccountInfo(ctx context.Context, s platform.Session) (models.AccountSnapshot, error) {
	sess, err := c.session(s)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	info, err := c.api.AccountInformation(ctx, sess.remoteID)
	if err != nil {
		return models.AccountSnapshot{}, platform.RemoteCallFailed(models.PlatformMT5, "account information", err)
	}

	name := info.Name
	if name == "" {
		name = sess.name
	}
	login := sess.login
	if info.Login != 0 {
		login = strconv.FormatInt(info.Login, 10)
	}
	server := info.Server
	if server == "" {
		server = sess.server
	}

	return models.AccountSnapshot{
		Platform:    models.PlatformMT5,
		Broker:      info.Broker,
		Name:        name,
		Login:       login,
		Server:      server,
		Currency:    info.Currency,
		Balance:     decimal.NewFromFloat(info.Balance),
		Equity:      decimal.NewFromFloat(info.Equity),
		Margin:      decimal.NewFromFloat(info.Margin),
		FreeMargin:  decimal.NewFromFloat(info.FreeMargin),
		MarginLevel: decimal.NewFromFloat(info.MarginLevel),
		Leverage:    info.Leverage,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// History reads the deals in [start, end] and pairs them into trades
func (c *Client) History(ctx context.Context, s platform.Session, start, end time.Time) ([]models.TradeHistoryRecord, error) {
	sess, err := c.session(s)
	if err != nil {
		return nil, err
	}
	deals, err := c.api.DealsByTimeRange(ctx, sess.remoteID, start, end)
	if err != nil {
		return nil, platform.RemoteCallFailed(models.PlatformMT5, "history deals", err)
	}
	return pairDeals(deals), nil
}

// Positions reads the open positions
func (c *Client) Positions(ctx context.Context, s platform.Session) ([]models.Position, error) {
	sess, err := c.session(s)
	if err != nil {
		return nil, err
	}
	raw, err := c.api.Positions(ctx, sess.remoteID)
	if err != nil {
		return nil, platform.RemoteCallFailed(models.PlatformMT5, "positions", err)
	}

	positions := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		side := models.SideBuy
		if p.Type == metaapi.PositionTypeSell {
			side = models.SideSell
		}
		positions = append(positions, models.Position{
			ID:           p.ID,
			Symbol:       p.Symbol,
			Side:         side,
			Volume:       decimal.NewFromFloat(p.Volume),
			OpenPrice:    decimal.NewFromFloat(p.OpenPrice),
			CurrentPrice: decimal.NewFromFloat(p.CurrentPrice),
			Profit:       decimal.NewFromFloat(p.Profit),
			Swap:         decimal.NewFromFloat(p.Swap),
			Commission:   decimal.NewFromFloat(p.Commission),
			OpenTime:     p.Time,
		})
	}
	return positions, nil
}

// Probe marks the session dropped when the terminal no longer reports a broker connection.
func (c *Client) Probe(ctx context.Context, s platform.Session) error {
	sess, err := c.session(s)
	if err != nil {
		return nil
	}
	acc, err := c.api.GetAccount(ctx, sess.remoteID)
	if err != nil {
		return fmt.Errorf("probe %s: %w", sess.remoteID, err)
	}
	if acc.State != metaapi.StateDeployed || acc.ConnectionStatus != metaapi.ConnectionConnected {
		c.logger.WithFields(logrus.Fields{
			"remote_id":         sess.remoteID,
			"state":             acc.State,
			"connection_status": acc.ConnectionStatus,
		}).Warn("MT5 terminal dropped its broker connection")
		sess.setConnected(false)
	}
	return nil
}

// Disconnect closes the session, undeploying the terminal first when configured to.
func (c *Client) Disconnect(ctx context.Context, s platform.Session) error {
	sess, ok := s.(*Session)
	if !ok || sess == nil {
		return nil
	}
	if c.undeployOnDisconnect && c.api != nil && sess.Connected() {
		if err := c.api.Undeploy(ctx, sess.remoteID); err != nil {
			return platform.RemoteCallFailed(models.PlatformMT5, "undeploy", err)
		}
	}
	sess.setConnected(false)
	return nil
}
