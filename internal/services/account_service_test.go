package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
)

func setupAccountService(t *testing.T) AccountService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&models.AccountRecord{}); err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewAccountService(db, logger)
}

func TestAccountService_Lifecycle(t *testing.T) {
	service := setupAccountService(t)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	identity := platform.Identity{Login: "12345678", Server: "Demo.MT4Server.com"}

	record, err := service.RecordEvent(registry.Event{
		AccountID: "mt5_12345678", Platform: models.PlatformMT5, Name: "Main",
		Identity: identity, State: registry.StateConnected, At: at,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusConnected, record.Status)
	assert.Equal(t, "12345678", record.Login)
	require.NotNil(t, record.LastConnectedAt)

	_, err = service.RecordEvent(registry.Event{
		AccountID: "mt5_12345678", Platform: models.PlatformMT5,
		State: registry.StateUnconnected, Reason: "requested", At: at.Add(time.Hour),
	})
	require.NoError(t, err)

	record, err = service.GetAccount("mt5_12345678")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusDisconnected, record.Status)
	assert.Equal(t, "Main", record.Name, "name is kept when the event omits it")
	assert.Equal(t, "Demo.MT4Server.com", record.Server)
	require.NotNil(t, record.LastDisconnectedAt)
	assert.True(t, record.LastDisconnectedAt.After(*record.LastConnectedAt))

	all, err := service.GetAllAccounts()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAccountService_FailedConnect(t *testing.T) {
	service := setupAccountService(t)

	connectErr := platform.NewConnectError(models.PlatformMT5, platform.ErrInvalidCredentials, "bad password")
	service.AccountStateChanged(context.Background(), registry.Event{
		AccountID: "mt5_1", Platform: models.PlatformMT5, State: registry.StateUnconnected, Err: connectErr,
	})

	record, err := service.GetAccount("mt5_1")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusFailed, record.Status)
	assert.Contains(t, record.LastError, "invalid credentials")

	service.AccountStateChanged(context.Background(), registry.Event{
		AccountID: "mt5_1", Platform: models.PlatformMT5, State: registry.StateConnected,
	})
	record, err = service.GetAccount("mt5_1")
	require.NoError(t, err)
	assert.Empty(t, record.LastError)
}

func TestAccountService_IgnoresTransientStates(t *testing.T) {
	service := setupAccountService(t)

	service.AccountStateChanged(context.Background(), registry.Event{AccountID: "mt5_1", State: registry.StateConnecting})

	_, err := service.GetAccount("mt5_1")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}
