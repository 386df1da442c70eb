package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies the external trading platform backing an account
type Platform string

const (
	PlatformMT5     Platform = "mt5"
	PlatformCTrader Platform = "ctrader"
)

// Valid reports whether p is a supported platform
func (p Platform) Valid() bool {
	return p == PlatformMT5 || p == PlatformCTrader
}

// AccountSnapshot is point-in-time account information. It is rebuilt on every request.
type AccountSnapshot struct {
	AccountID   string          `json:"accountId"`
	Platform    Platform        `json:"platform"`
	Broker      string          `json:"broker,omitempty"`
	Name        string          `json:"name,omitempty"`
	Login       string          `json:"login,omitempty"`
	Server      string          `json:"server,omitempty"`
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Margin      decimal.Decimal `json:"margin"`
	FreeMargin  decimal.Decimal `json:"freeMargin"`
	MarginLevel decimal.Decimal `json:"marginLevel"`
	Leverage    int             `json:"leverage"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Trade sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade statuses
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// TradeHistoryRecord is a closed or still open trade reconstructed from platform deals
type TradeHistoryRecord struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"orderId,omitempty"`
	PositionID string          `json:"positionId,omitempty"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Status     string          `json:"status"`
	Volume     decimal.Decimal `json:"volume"`
	OpenPrice  decimal.Decimal `json:"openPrice"`
	ClosePrice decimal.Decimal `json:"closePrice"`
	OpenTime   time.Time       `json:"openTime"`
	CloseTime  *time.Time      `json:"closeTime,omitempty"`
	Profit     decimal.Decimal `json:"profit"`
	Commission decimal.Decimal `json:"commission"`
	Swap       decimal.Decimal `json:"swap"`
	Comment    string          `json:"comment,omitempty"`
}

// Position is an open position as reported by the platform
type Position struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Volume       decimal.Decimal `json:"volume"`
	OpenPrice    decimal.Decimal `json:"openPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Profit       decimal.Decimal `json:"profit"`
	Swap         decimal.Decimal `json:"swap"`
	Commission   decimal.Decimal `json:"commission"`
	OpenTime     time.Time       `json:"openTime"`
}
