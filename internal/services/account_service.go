package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
)

// ErrAccountNotFound is returned when no bookkeeping row exists for an account
var ErrAccountNotFound = errors.New("account record not found")

// AccountService defines methods for the account bookkeeping table
type AccountService interface {
	GetAllAccounts() ([]models.AccountRecord, error)
	GetAccount(accountID string) (*models.AccountRecord, error)
	RecordEvent(ev registry.Event) (*models.AccountRecord, error)

	registry.Listener
}

// AccountServiceImpl implements AccountService
type AccountServiceImpl struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

// NewAccountService creates a new account service
func NewAccountService(db *gorm.DB, logger *logrus.Logger) AccountService {
	return &AccountServiceImpl{DB: db, Logger: logger}
}

// GetAllAccounts returns all account records, most recently updated first
func (s *AccountServiceImpl) GetAllAccounts() ([]models.AccountRecord, error) {
	var records []models.AccountRecord
	result := s.DB.Order("updated_at desc").Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// GetAccount returns the record for an account id
func (s *AccountServiceImpl) GetAccount(accountID string) (*models.AccountRecord, error) {
	var record models.AccountRecord
	result := s.DB.Where("account_id = ?", accountID).First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

// RecordEvent upserts the row for the event's account
func (s *AccountServiceImpl) RecordEvent(ev registry.Event) (*models.AccountRecord, error) {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := map[string]any{
		"platform":   ev.Platform,
		"status":     recordStatus(ev),
		"updated_at": at,
	}
	if ev.Name != "" {
		updates["name"] = ev.Name
	}
	if ev.Identity.Login != "" {
		updates["login"] = ev.Identity.Login
	}
	if ev.Identity.Server != "" {
		updates["server"] = ev.Identity.Server
	}
	if ev.Identity.Environment != "" {
		updates["environment"] = ev.Identity.Environment
	}
	switch {
	case ev.Err != nil:
		updates["last_error"] = ev.Err.Error()
	case ev.State == registry.StateConnected:
		updates["last_error"] = ""
		updates["last_connected_at"] = at
	case ev.State == registry.StateUnconnected:
		updates["last_disconnected_at"] = at
	}

	var record models.AccountRecord
	err := s.DB.Where(models.AccountRecord{AccountID: ev.AccountID}).
		Assign(updates).
		FirstOrCreate(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// AccountStateChanged persists registry transitions. Storage failures are logged and never
// block the registry.
func (s *AccountServiceImpl) AccountStateChanged(ctx context.Context, ev registry.Event) {
	if ev.State == registry.StateConnecting || ev.State == registry.StateDisconnecting {
		return
	}
	if _, err := s.RecordEvent(ev); err != nil {
		s.Logger.WithError(err).WithField("account_id", ev.AccountID).Error("Failed to record account state")
	}
}

// recordStatus is the value of the status column for an event
func recordStatus(ev registry.Event) string {
	if ev.State == registry.StateUnconnected {
		if ev.Err != nil {
			return models.AccountStatusFailed
		}
		return models.AccountStatusDisconnected
	}
	return string(ev.State)
}
