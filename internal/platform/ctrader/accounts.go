package ctrader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// tradingAccount is one entry of /connect/tradingaccounts
type tradingAccount struct {
	AccountID       int64  `json:"accountId"`
	AccountNumber   int64  `json:"accountNumber"`
	Live            bool   `json:"live"`
	BrokerName      string `json:"brokerName"`
	BrokerTitle     string `json:"brokerTitle"`
	DepositCurrency string `json:"depositCurrency"`
	TraderLogin     string `json:"traderLogin"`
	Balance         int64  `json:"balance"`
	LeverageInCents int64  `json:"leverageInCents"`
	MoneyDigits     *int   `json:"moneyDigits"`
	Deleted         bool   `json:"deleted"`
	AccountStatus   string `json:"accountStatus"`
}

func (a tradingAccount) digits() int {
	if a.MoneyDigits == nil {
		return 2
	}
	return *a.MoneyDigits
}

type closePositionDetail struct {
	EntryPrice   float64 `json:"entryPrice"`
	GrossProfit  int64   `json:"grossProfit"`
	Swap         int64   `json:"swap"`
	Commission   int64   `json:"commission"`
	ClosedVolume int64   `json:"closedVolume"`
	MoneyDigits  *int    `json:"moneyDigits"`
}

// deal is one entry of /connect/tradingaccounts/{id}/deals
type deal struct {
	DealID              int64                `json:"dealId"`
	OrderID             int64                `json:"orderId"`
	PositionID          int64                `json:"positionId"`
	TradeSide           string               `json:"tradeSide"`
	SymbolName          string               `json:"symbolName"`
	Volume              int64                `json:"volume"`
	FilledVolume        int64                `json:"filledVolume"`
	ExecutionPrice      float64              `json:"executionPrice"`
	ExecutionTimestamp  int64                `json:"executionTimestamp"`
	Commission          int64                `json:"commission"`
	DealStatus          string               `json:"dealStatus"`
	Comment             string               `json:"comment"`
	ClosePositionDetail *closePositionDetail `json:"closePositionDetail"`
	MoneyDigits         *int                 `json:"moneyDigits"`
}

// restError is a non-2xx answer from the Connect API.
type restError struct {
	StatusCode int
	Body       string
}

func (e *restError) Error() string {
	return fmt.Sprintf("ctrader api: status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, accessToken string, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Connect+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &restError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Errors can also arrive as a 200 carrying {"errorCode": ...}.
	var envelope struct {
		ErrorCode   string `json:"errorCode"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.ErrorCode != "" {
		return &restError{StatusCode: http.StatusUnauthorized, Body: envelope.ErrorCode + ": " + envelope.Description}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) tradingAccounts(ctx context.Context, accessToken string) ([]tradingAccount, error) {
	var resp struct {
		Data []tradingAccount `json:"data"`
	}
	if err := c.get(ctx, "/connect/tradingaccounts", nil, accessToken, &resp); err != nil {
		return nil, fmt.Errorf("trading accounts: %w", err)
	}
	return resp.Data, nil
}

func (c *Client) deals(ctx context.Context, accessToken string, accountID int64, from, to time.Time) ([]deal, error) {
	params := url.Values{
		"from": {strconv.FormatInt(from.UnixMilli(), 10)},
		"to":   {strconv.FormatInt(to.UnixMilli(), 10)},
	}
	var resp struct {
		Data []deal `json:"data"`
	}
	path := "/connect/tradingaccounts/" + strconv.FormatInt(accountID, 10) + "/deals"
	if err := c.get(ctx, path, params, accessToken, &resp); err != nil {
		return nil, fmt.Errorf("deals: %w", err)
	}
	return resp.Data, nil
}

// money scales an integer amount expressed in 10^-digits units.
func money(v int64, digits int) decimal.Decimal {
	return decimal.New(v, -int32(digits))
}

// units converts cTrader volume (hundredths of a unit) to units.
func units(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
