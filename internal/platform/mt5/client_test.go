package mt5

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/metaapi"
)

// stubAPI is an in-memory MetaApi.
type stubAPI struct {
	mu sync.Mutex

	account     *metaapi.Account
	findErr     error
	createErr   error
	neverSync   bool
	info        metaapi.AccountInformation
	deals       []metaapi.Deal
	calls       []string
	undeployErr error
}

func (s *stubAPI) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *stubAPI) called(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (s *stubAPI) FindAccount(ctx context.Context, login, server string) (*metaapi.Account, error) {
	s.record("find")
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.account, nil
}

func (s *stubAPI) CreateAccount(ctx context.Context, acc metaapi.NewAccount) (*metaapi.Account, error) {
	s.record("create")
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.account = &metaapi.Account{ID: "remote-1", Login: acc.Login, Server: acc.Server, Name: acc.Name, State: metaapi.StateCreated}
	return s.account, nil
}

func (s *stubAPI) GetAccount(ctx context.Context, id string) (*metaapi.Account, error) {
	s.record("get")
	acc := *s.account
	return &acc, nil
}

func (s *stubAPI) Deploy(ctx context.Context, id string) error {
	s.record("deploy")
	s.account.State = metaapi.StateDeploying
	return nil
}

func (s *stubAPI) Undeploy(ctx context.Context, id string) error {
	s.record("undeploy")
	return s.undeployErr
}

func (s *stubAPI) WaitDeployed(ctx context.Context, id string) (*metaapi.Account, error) {
	s.record("wait_deployed")
	s.account.State = metaapi.StateDeployed
	return s.account, nil
}

func (s *stubAPI) WaitSynchronized(ctx context.Context, id string) (*metaapi.Account, error) {
	s.record("wait_synchronized")
	if s.neverSync {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.account.ConnectionStatus = metaapi.ConnectionConnected
	return s.account, nil
}

func (s *stubAPI) AccountInformation(ctx context.Context, id string) (*metaapi.AccountInformation, error) {
	s.record("account_information")
	info := s.info
	return &info, nil
}

func (s *stubAPI) DealsByTimeRange(ctx context.Context, id string, start, end time.Time) ([]metaapi.Deal, error) {
	s.record("deals")
	return s.deals, nil
}

func (s *stubAPI) Positions(ctx context.Context, id string) ([]metaapi.Position, error) {
	s.record("positions")
	return []metaapi.Position{{ID: "p1", Type: metaapi.PositionTypeSell, Symbol: "EURUSD", Volume: 0.5}}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testCreds = platform.MT5Credentials{Login: "12345678", Password: "x", Server: "Demo.MT4Server.com"}

func TestConnect_CreatesAndDeploys(t *testing.T) {
	api := &stubAPI{info: metaapi.AccountInformation{Currency: "USD", Balance: 10000, Equity: 10000, Leverage: 100}}
	client := NewClient(api, testLogger())

	sess, err := client.Connect(context.Background(), testCreds)
	require.NoError(t, err)
	assert.True(t, sess.Connected())
	assert.Equal(t, "remote-1", sess.(*Session).RemoteID())
	for _, call := range []string{"find", "create", "deploy", "wait_deployed", "wait_synchronized"} {
		assert.True(t, api.called(call), call)
	}

	snap, err := client.AccountInfo(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.Currency)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "12345678", snap.Login)
	assert.Equal(t, 100, snap.Leverage)
}

func TestConnect_ReusesDeployedAccount(t *testing.T) {
	api := &stubAPI{account: &metaapi.Account{ID: "existing", State: metaapi.StateDeployed}}
	client := NewClient(api, testLogger())

	_, err := client.Connect(context.Background(), testCreds)
	require.NoError(t, err)
	assert.False(t, api.called("create"))
	assert.False(t, api.called("deploy"))
	assert.False(t, api.called("wait_deployed"))
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name string
		api  API
		want error
	}{
		{
			name: "missing token",
			api:  nil,
			want: platform.ErrServiceNotInitialized,
		},
		{
			name: "token rejected",
			api:  &stubAPI{findErr: &metaapi.APIError{StatusCode: http.StatusUnauthorized, Message: "bad token"}},
			want: platform.ErrServiceNotInitialized,
		},
		{
			name: "provisioning down",
			api:  &stubAPI{findErr: &metaapi.APIError{StatusCode: http.StatusBadGateway}},
			want: platform.ErrRemoteUnavailable,
		},
		{
			name: "bad password",
			api:  &stubAPI{createErr: &metaapi.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid login or password"}},
			want: platform.ErrInvalidCredentials,
		},
		{
			name: "creation failed",
			api:  &stubAPI{createErr: &metaapi.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}},
			want: platform.ErrRemoteAccountCreationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var client *Client
			if tt.api == nil {
				client = NewClient(nil, testLogger())
			} else {
				client = NewClient(tt.api, testLogger())
			}
			_, err := client.Connect(context.Background(), testCreds)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var connectErr *platform.ConnectError
			require.True(t, errors.As(err, &connectErr))
			assert.Equal(t, models.PlatformMT5, connectErr.Platform)
		})
	}
}

func TestConnect_ValidationBeforeRemoteCalls(t *testing.T) {
	api := &stubAPI{}
	client := NewClient(api, testLogger())

	_, err := client.Connect(context.Background(), platform.MT5Credentials{Login: "1"})
	assert.ErrorIs(t, err, platform.ErrValidation)
	assert.Empty(t, api.calls)
}

func TestConnect_SynchronizationTimeout(t *testing.T) {
	api := &stubAPI{account: &metaapi.Account{ID: "existing", State: metaapi.StateDeployed}, neverSync: true}
	client := NewClient(api, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.Connect(ctx, testCreds)
	assert.ErrorIs(t, err, platform.ErrSynchronizationTimeout)
}

func TestSessionOperations_AfterDisconnect(t *testing.T) {
	api := &stubAPI{account: &metaapi.Account{ID: "existing", State: metaapi.StateDeployed}}
	client := NewClient(api, testLogger(), WithUndeployOnDisconnect(true))

	sess, err := client.Connect(context.Background(), testCreds)
	require.NoError(t, err)

	require.NoError(t, client.Disconnect(context.Background(), sess))
	assert.True(t, api.called("undeploy"))
	assert.False(t, sess.Connected())

	// second disconnect is a no-op
	require.NoError(t, client.Disconnect(context.Background(), sess))

	_, err = client.AccountInfo(context.Background(), sess)
	assert.ErrorIs(t, err, platform.ErrNotConnected)
	_, err = client.History(context.Background(), sess, time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, platform.ErrNotConnected)
}

func TestDisconnect_UndeployFailureKeepsSession(t *testing.T) {
	api := &stubAPI{account: &metaapi.Account{ID: "existing", State: metaapi.StateDeployed}, undeployErr: errors.New("boom")}
	client := NewClient(api, testLogger(), WithUndeployOnDisconnect(true))

	sess, err := client.Connect(context.Background(), testCreds)
	require.NoError(t, err)

	err = client.Disconnect(context.Background(), sess)
	assert.ErrorIs(t, err, platform.ErrRemoteCallFailed)
	assert.True(t, sess.Connected())
}

func TestProbe_MarksDroppedSession(t *testing.T) {
	api := &stubAPI{account: &metaapi.Account{ID: "existing", State: metaapi.StateDeployed}}
	client := NewClient(api, testLogger())

	sess, err := client.Connect(context.Background(), testCreds)
	require.NoError(t, err)

	require.NoError(t, client.Probe(context.Background(), sess))
	assert.True(t, sess.Connected())

	api.account.ConnectionStatus = metaapi.ConnectionDisconnectedFromBroker
	require.NoError(t, client.Probe(context.Background(), sess))
	assert.False(t, sess.Connected())
}

func TestPositions(t *testing.T) {
	api := &stubAPI{account: &metaapi.Account{ID: "existing", State: metaapi.StateDeployed}}
	client := NewClient(api, testLogger())

	sess, err := client.Connect(context.Background(), testCreds)
	require.NoError(t, err)

	positions, err := client.Positions(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, models.SideSell, positions[0].Side)
}
