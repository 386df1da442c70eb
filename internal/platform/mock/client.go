// Package mock serves canned account data for development. It is only wired in when mock
// mode is switched on explicitly, and it warns on every use.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
)

var (
	_ platform.Client         = (*Client)(nil)
	_ platform.PositionLister = (*Client)(nil)
)

// Client answers every call with fixed data for one platform
type Client struct {
	platform models.Platform
	logger   *logrus.Entry
}

// NewClient creates a canned client standing in for p
func NewClient(p models.Platform, logger *logrus.Logger) *Client {
	return &Client{
		platform: p,
		logger:   logger.WithFields(logrus.Fields{"component": "mock", "platform": p}),
	}
}

func (c *Client) Platform() models.Platform { return c.platform }

// Session is a canned session
type Session struct {
	platform models.Platform
	identity platform.Identity

	mu     sync.RWMutex
	closed bool
}

func (s *Session) Platform() models.Platform { return s.platform }

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

func (c *Client) warn(op string, identity platform.Identity) {
	c.logger.WithFields(logrus.Fields{
		"operation": op,
		"login":     identity.Login,
		"server":    identity.Server,
	}).Warn("mock mode active: serving canned data instead of calling the platform")
}

// Connect validates the credentials and returns a canned session without any remote call
func (c *Client) Connect(ctx context.Context, creds platform.Credentials) (platform.Session, error) {
	if creds == nil {
		return nil, platform.NewConnectError(c.platform, platform.ErrInvalidCredentials, "no credentials")
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	identity := creds.Identity()
	c.warn("connect", identity)
	return &Session{platform: c.platform, identity: identity}, nil
}

func (c *Client) session(s platform.Session) (*Session, error) {
	sess, ok := s.(*Session)
	if !ok || sess == nil || !sess.Connected() {
		return nil, platform.NotConnected(c.platform)
	}
	return sess, nil
}

// Snapshot is the canned account snapshot
func Snapshot(p models.Platform) models.AccountSnapshot {
	return models.AccountSnapshot{
		Platform:    p,
		Broker:      "Mock Broker",
		Name:        "Mock Account",
		Currency:    "USD",
		Balance:     decimal.NewFromInt(10000),
		Equity:      decimal.NewFromInt(10000),
		Margin:      decimal.Zero,
		FreeMargin:  decimal.NewFromInt(10000),
		MarginLevel: decimal.Zero,
		Leverage:    100,
		Timestamp:   time.Now().UTC(),
	}
}

func (c *Client) AccountInfo(ctx context.Context, s platform.Session) (models.AccountSnapshot, error) {
	sess, err := c.session(s)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	c.warn("account_info", sess.identity)
	snap := Snapshot(c.platform)
	snap.Login = sess.identity.Login
	snap.Server = sess.identity.Server
	return snap, nil
}

// Trades returns the canned three-trade history spread across [start, end]
func Trades(start, end time.Time) []models.TradeHistoryRecord {
	span := end.Sub(start)
	at := func(fraction int) time.Time {
		return start.Add(span * time.Duration(fraction) / 4).UTC()
	}
	closeAt := func(fraction int) *time.Time {
		t := at(fraction)
		return &t
	}
	return []models.TradeHistoryRecord{
		{
			ID: "mock-1", OrderID: "mock-order-1", PositionID: "mock-pos-1",
			Symbol: "EURUSD", Side: models.SideBuy, Status: models.TradeClosed,
			Volume:    decimal.RequireFromString("0.1"),
			OpenPrice: decimal.RequireFromString("1.08500"), ClosePrice: decimal.RequireFromString("1.08750"),
			OpenTime: at(0), CloseTime: closeAt(1),
			Profit: decimal.RequireFromString("25.00"), Commission: decimal.RequireFromString("-0.70"), Swap: decimal.Zero,
		},
		{
			ID: "mock-2", OrderID: "mock-order-2", PositionID: "mock-pos-2",
			Symbol: "GBPUSD", Side: models.SideSell, Status: models.TradeClosed,
			Volume:    decimal.RequireFromString("0.2"),
			OpenPrice: decimal.RequireFromString("1.27000"), ClosePrice: decimal.RequireFromString("1.27300"),
			OpenTime: at(1), CloseTime: closeAt(2),
			Profit: decimal.RequireFromString("-60.00"), Commission: decimal.RequireFromString("-1.40"), Swap: decimal.RequireFromString("-0.35"),
		},
		{
			ID: "mock-3", OrderID: "mock-order-3", PositionID: "mock-pos-3",
			Symbol: "XAUUSD", Side: models.SideBuy, Status: models.TradeClosed,
			Volume:    decimal.RequireFromString("0.05"),
			OpenPrice: decimal.RequireFromString("2030.50"), ClosePrice: decimal.RequireFromString("2041.10"),
			OpenTime: at(2), CloseTime: closeAt(3),
			Profit: decimal.RequireFromString("53.00"), Commission: decimal.RequireFromString("-0.35"), Swap: decimal.Zero,
		},
	}
}

func (c *Client) History(ctx context.Context, s platform.Session, start, end time.Time) ([]models.TradeHistoryRecord, error) {
	sess, err := c.session(s)
	if err != nil {
		return nil, err
	}
	c.warn("history", sess.identity)
	return Trades(start, end), nil
}

func (c *Client) Positions(ctx context.Context, s platform.Session) ([]models.Position, error) {
	sess, err := c.session(s)
	if err != nil {
		return nil, err
	}
	c.warn("positions", sess.identity)
	return []models.Position{}, nil
}

func (c *Client) Disconnect(ctx context.Context, s platform.Session) error {
	if sess, ok := s.(*Session); ok && sess != nil {
		sess.mu.Lock()
		sess.closed = true
		sess.mu.Unlock()
	}
	return nil
}
