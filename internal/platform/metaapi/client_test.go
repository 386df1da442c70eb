package metaapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{
		Token:           "test-token",
		ProvisioningURL: server.URL,
		ClientURL:       server.URL,
		PollInterval:    5 * time.Millisecond,
	})
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Options{Token: "tok"})
	assert.Equal(t, DefaultProvisioningURL, client.provisioningURL)
	assert.Equal(t, "https://mt-client-api-v1.new-york.agiliumtrade.ai", client.clientURL)
	assert.Nil(t, client.limiter)

	client = NewClient(Options{Token: "tok", Region: "london", RateLimit: 5})
	assert.Equal(t, "https://mt-client-api-v1.london.agiliumtrade.ai", client.clientURL)
	assert.NotNil(t, client.limiter)
}

func TestFindAccount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("auth-token"))
		assert.Equal(t, "/users/current/accounts", r.URL.Path)
		assert.Equal(t, "12345678", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]Account{
			{ID: "a1", Login: "12345678", Server: "Other-Server", Platform: "mt5"},
			{ID: "a2", Login: "12345678", Server: "Demo.MT4Server.com", Platform: "mt5", State: StateDeployed},
		})
	}))

	acc, err := client.FindAccount(context.Background(), "12345678", "Demo.MT4Server.com")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "a2", acc.ID)
	assert.True(t, acc.Deployed())

	acc, err = client.FindAccount(context.Background(), "12345678", "Missing")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestCreateAccount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body NewAccount
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cloud", body.Type)
		assert.Equal(t, "mt5", body.Platform)
		assert.Equal(t, "secret", body.Password)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new-id","state":"CREATED"}`))
	}))

	acc, err := client.CreateAccount(context.Background(), NewAccount{
		Name: "demo", Login: "1", Password: "secret", Server: "srv",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", acc.ID)
	assert.Equal(t, StateCreated, acc.State)
}

func TestAPIErrorDecoding(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"id":1,"error":"UnauthorizedError","message":"auth-token header is invalid"}`))
	}))

	_, err := client.ListAccounts(context.Background(), "")
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "UnauthorizedError", apiErr.Name)
	assert.True(t, apiErr.Unauthorized())
	assert.False(t, apiErr.Temporary())
}

func TestWaitDeployed(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := StateDeploying
		if calls.Add(1) >= 3 {
			state = StateDeployed
		}
		json.NewEncoder(w).Encode(Account{ID: "a1", State: state})
	}))

	acc, err := client.WaitDeployed(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, StateDeployed, acc.State)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitDeployed_FailedState(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Account{ID: "a1", State: "DEPLOY_FAILED"})
	}))

	_, err := client.WaitDeployed(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrDeployFailed)
}

func TestWaitSynchronized_ContextDeadline(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Account{ID: "a1", State: StateDeployed, ConnectionStatus: ConnectionDisconnected})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := client.WaitSynchronized(ctx, "a1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestDealsByTimeRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	t.Run("plain list", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/users/current/accounts/a1/history-deals/time/2024-01-01T00:00:00.000Z/2024-01-31T00:00:00.000Z", r.URL.Path)
			w.Write([]byte(`[{"id":"1","type":"DEAL_TYPE_BUY","entryType":"DEAL_ENTRY_IN","symbol":"EURUSD","time":"2024-01-02T10:00:00.000Z","volume":0.1,"price":1.1}]`))
		}))
		deals, err := client.DealsByTimeRange(context.Background(), "a1", start, end)
		require.NoError(t, err)
		require.Len(t, deals, 1)
		assert.Equal(t, "EURUSD", deals[0].Symbol)
		assert.Equal(t, DealEntryIn, deals[0].EntryType)
	})

	t.Run("wrapped list", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"deals":[{"id":"1"},{"id":"2"}],"synchronizing":false}`))
		}))
		deals, err := client.DealsByTimeRange(context.Background(), "a1", start, end)
		require.NoError(t, err)
		assert.Len(t, deals, 2)
	})
}

func TestAccountInformation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/current/accounts/a1/account-information", r.URL.Path)
		w.Write([]byte(`{"broker":"Demo Broker","currency":"USD","balance":10000,"equity":10050.5,"leverage":100}`))
	}))

	info, err := client.AccountInformation(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "USD", info.Currency)
	assert.Equal(t, 10050.5, info.Equity)
	assert.Equal(t, 100, info.Leverage)
}
