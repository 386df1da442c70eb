package metaapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
)

// Deal types and entry types as reported by the terminal
const (
	DealTypeBuy  = "DEAL_TYPE_BUY"
	DealTypeSell = "DEAL_TYPE_SELL"

	DealEntryIn    = "DEAL_ENTRY_IN"
	DealEntryOut   = "DEAL_ENTRY_OUT"
	DealEntryInOut = "DEAL_ENTRY_INOUT"
	DealEntryOutBy = "DEAL_ENTRY_OUT_BY"

	PositionTypeBuy  = "POSITION_TYPE_BUY"
	PositionTypeSell = "POSITION_TYPE_SELL"
)

// AccountInformation is the terminal's view of account state
type AccountInformation struct {
	Platform    string  `json:"platform"`
	Broker      string  `json:"broker"`
	Currency    string  `json:"currency"`
	Server      string  `json:"server"`
	Name        string  `json:"name"`
	Login       int64   `json:"login"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	FreeMargin  float64 `json:"freeMargin"`
	MarginLevel float64 `json:"marginLevel"`
	Leverage    int     `json:"leverage"`
}

// Deal is one history deal
type Deal struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	EntryType  string    `json:"entryType"`
	Symbol     string    `json:"symbol"`
	Time       time.Time `json:"time"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Commission float64   `json:"commission"`
	Swap       float64   `json:"swap"`
	OrderID    string    `json:"orderId"`
	PositionID string    `json:"positionId"`
	Comment    string    `json:"comment"`
}

// Position is one open position
type Position struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Symbol       string    `json:"symbol"`
	Time         time.Time `json:"time"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"openPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	Profit       float64   `json:"profit"`
	Swap         float64   `json:"swap"`
	Commission   float64   `json:"commission"`
}

const isoMillis = "2006-01-02T15:04:05.000Z"

func (c *Client) terminalURL(id, path string) string {
	return c.clientURL + "/users/current/accounts/" + url.PathEscape(id) + path
}

// AccountInformation reads balance, equity and margin from the deployed terminal
func (c *Client) AccountInformation(ctx context.Context, id string) (*AccountInformation, error) {
	var info AccountInformation
	if err := c.do(ctx, http.MethodGet, c.terminalURL(id, "/account-information"), nil, &info); err != nil {
		return nil, fmt.Errorf("account information: %w", err)
	}
	return &info, nil
}

// DealsByTimeRange reads history deals executed within [start, end]
func (c *Client) DealsByTimeRange(ctx context.Context, id string, start, end time.Time) ([]Deal, error) {
	path := fmt.Sprintf("/history-deals/time/%s/%s",
		url.PathEscape(start.UTC().Format(isoMillis)),
		url.PathEscape(end.UTC().Format(isoMillis)))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.terminalURL(id, path), nil, &raw); err != nil {
		return nil, fmt.Errorf("history deals: %w", err)
	}

	// Older API revisions wrap the list as {"deals": [...], "synchronizing": bool}.
	var deals []Deal
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Deals []Deal `json:"deals"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode history deals: %w", err)
		}
		deals = wrapped.Deals
	} else if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &deals); err != nil {
			return nil, fmt.Errorf("decode history deals: %w", err)
		}
	}
	return deals, nil
}

// Positions reads the currently open positions
func (c *Client) Positions(ctx context.Context, id string) ([]Position, error) {
	var positions []Position
	if err := c.do(ctx, http.MethodGet, c.terminalURL(id, "/positions"), nil, &positions); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	return positions, nil
}
