package metaapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxPollInterval = 10 * time.Second

// ErrDeployFailed is returned when MetaApi reports a terminal deployment failure state.
var ErrDeployFailed = errors.New("metaapi: deployment failed")

// WaitDeployed polls the account record until it reaches DEPLOYED. It returns the context
// error when ctx ends first.
func (c *Client) WaitDeployed(ctx context.Context, id string) (*Account, error) {
	return c.poll(ctx, id, func(acc *Account) (bool, error) {
		if acc.State == StateDeployed {
			return true, nil
		}
		if strings.HasSuffix(acc.State, "_FAILED") {
			return false, fmt.Errorf("%w: state %s", ErrDeployFailed, acc.State)
		}
		return false, nil
	})
}

// WaitSynchronized polls the account record until the terminal reports a broker connection.
func (c *Client) WaitSynchronized(ctx context.Context, id string) (*Account, error) {
	return c.poll(ctx, id, func(acc *Account) (bool, error) {
		return acc.ConnectionStatus == ConnectionConnected, nil
	})
}

// poll reads the account with exponential backoff until done reports true, done fails, or
// a non-temporary API error occurs.
func (c *Client) poll(ctx context.Context, id string, done func(*Account) (bool, error)) (*Account, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = c.pollInterval
	backoffCfg.MaxInterval = maxPollInterval
	if backoffCfg.MaxInterval < c.pollInterval {
		backoffCfg.MaxInterval = c.pollInterval
	}

	for {
		acc, err := c.GetAccount(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if apiErr, ok := AsAPIError(err); ok && !apiErr.Temporary() {
				return nil, err
			}
		} else {
			ok, doneErr := done(acc)
			if doneErr != nil {
				return acc, doneErr
			}
			if ok {
				return acc, nil
			}
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = backoffCfg.MaxInterval
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
