package registry

import (
	"context"
	"time"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
)

// Event is one account state transition
type Event struct {
	AccountID string
	Platform  models.Platform
	Name      string
	Identity  platform.Identity
	State     State
	Reason    string
	Err       error
	At        time.Time
}

// Listener is notified of every state transition. Calls are made while the account is
// locked, so implementations must not call back into the registry for the same account
// and should return quickly.
type Listener interface {
	AccountStateChanged(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, ev Event)

func (f ListenerFunc) AccountStateChanged(ctx context.Context, ev Event) { f(ctx, ev) }
