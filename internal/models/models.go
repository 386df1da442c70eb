package models

import "time"

// Message represents a WebSocket message
type Message struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// MT5ConnectRequest is the request body for connecting an MT5 account
type MT5ConnectRequest struct {
	Name     string `json:"name"`
	Server   string `json:"server"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// CTraderConnectRequest is the request body for starting a cTrader authorization
type CTraderConnectRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Environment  string `json:"environment"`
	AccountID    string `json:"accountId,omitempty"`
	Name         string `json:"name,omitempty"`
}

// ConnectResponse is returned after an account has been connected
type ConnectResponse struct {
	Success     bool             `json:"success"`
	AccountID   string           `json:"accountId"`
	Environment string           `json:"environment,omitempty"`
	AccountInfo *AccountSnapshot `json:"accountInfo,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HistoryResponse is the body of the history endpoints
type HistoryResponse struct {
	AccountID string               `json:"accountId"`
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	Trades    []TradeHistoryRecord `json:"trades"`
}
