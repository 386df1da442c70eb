// Package platform defines the capability every trading-platform integration implements
// and the error taxonomy shared by all of them.
package platform

import (
	"context"
	"time"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
)

// Session is a live, authenticated handle to a deployed and synchronized remote account.
type Session interface {
	Platform() models.Platform
	// Connected reports whether the session can still serve calls.
	Connected() bool
}

// Client encapsulates everything platform specific behind four operations.
// Implementations never return raw vendor errors: Connect returns *ConnectError and the
// session operations return *SessionError.
type Client interface {
	Platform() models.Platform
	Connect(ctx context.Context, creds Credentials) (Session, error)
	AccountInfo(ctx context.Context, s Session) (models.AccountSnapshot, error)
	History(ctx context.Context, s Session, start, end time.Time) ([]models.TradeHistoryRecord, error)
	// Disconnect closes the session. Closing an already closed session succeeds.
	Disconnect(ctx context.Context, s Session) error
}

// PositionLister is implemented by clients that can report open positions.
type PositionLister interface {
	Positions(ctx context.Context, s Session) ([]models.Position, error)
}

// Prober is implemented by clients that can refresh a session's health from the remote side.
// A probe that finds the session dropped marks it so that Connected reports false.
type Prober interface {
	Probe(ctx context.Context, s Session) error
}

// TradingAccountRef identifies one external account and carries its credentials.
type TradingAccountRef struct {
	AccountID   string
	Platform    models.Platform
	Name        string
	Credentials Credentials
}

// Validate checks the reference and its credentials before any remote call.
func (r TradingAccountRef) Validate() error {
	if r.AccountID == "" {
		return validationError("account id is required")
	}
	if !r.Platform.Valid() {
		return validationError("unsupported platform %q", r.Platform)
	}
	if r.Credentials == nil {
		return validationError("credentials are required")
	}
	if r.Credentials.Platform() != r.Platform {
		return validationError("credentials for %s cannot connect a %s account", r.Credentials.Platform(), r.Platform)
	}
	return r.Credentials.Validate()
}
