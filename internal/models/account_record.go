package models

import (
	"time"
)

// Account record statuses besides the registry's own states.
const (
	AccountStatusConnected    = "connected"
	AccountStatusDisconnected = "disconnected"
	AccountStatusFailed       = "failed"
)

// AccountRecord is the non-secret bookkeeping row kept for every account the service has connected.
// Passwords, client secrets and tokens never reach this table.
type AccountRecord struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	AccountID          string     `json:"accountId" gorm:"column:account_id;uniqueIndex"`
	Platform           Platform   `json:"platform" gorm:"column:platform"`
	Name               string     `json:"name" gorm:"column:name"`
	Login              string     `json:"login,omitempty" gorm:"column:login"`
	Server             string     `json:"server,omitempty" gorm:"column:server"`
	Environment        string     `json:"environment,omitempty" gorm:"column:environment"`
	Status             string     `json:"status" gorm:"column:status"`
	LastError          string     `json:"lastError,omitempty" gorm:"column:last_error"`
	LastConnectedAt    *time.Time `json:"lastConnectedAt,omitempty" gorm:"column:last_connected_at"`
	LastDisconnectedAt *time.Time `json:"lastDisconnectedAt,omitempty" gorm:"column:last_disconnected_at"`
	CreatedAt          time.Time  `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt          time.Time  `json:"updatedAt" gorm:"column:updated_at"`
}

// TableName specifies the table name for AccountRecord model
func (AccountRecord) TableName() string {
	return "trading_accounts"
}
