package metaapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Account deployment states
const (
	StateCreated    = "CREATED"
	StateDeploying  = "DEPLOYING"
	StateDeployed   = "DEPLOYED"
	StateUndeployed = "UNDEPLOYED"
)

// Connection statuses reported for a deployed account
const (
	ConnectionConnected    = "CONNECTED"
	ConnectionDisconnected = "DISCONNECTED"
	// ConnectionDisconnectedFromBroker means the terminal runs but the broker refused it.
	ConnectionDisconnectedFromBroker = "DISCONNECTED_FROM_BROKER"
)

// Account is a MetaApi account record
type Account struct {
	ID               string `json:"_id"`
	Name             string `json:"name"`
	Login            string `json:"login"`
	Server           string `json:"server"`
	Platform         string `json:"platform"`
	Type             string `json:"type"`
	Region           string `json:"region,omitempty"`
	State            string `json:"state"`
	ConnectionStatus string `json:"connectionStatus"`
}

// Deployed reports whether the account terminal is deployed or on its way there.
func (a *Account) Deployed() bool {
	return a.State == StateDeployed || a.State == StateDeploying
}

// NewAccount is the payload for creating an account record
type NewAccount struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
	Platform string `json:"platform"`
	Magic    int    `json:"magic"`
}

type createAccountResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func (c *Client) accountsURL() string {
	return c.provisioningURL + "/users/current/accounts"
}

// ListAccounts lists account records, optionally filtered by a free text query
func (c *Client) ListAccounts(ctx context.Context, query string) ([]Account, error) {
	u := c.accountsURL()
	if query != "" {
		u += "?" + url.Values{"query": {query}}.Encode()
	}
	var accounts []Account
	if err := c.do(ctx, http.MethodGet, u, nil, &accounts); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// FindAccount returns the MT5 account record for login on server, or nil when none exists.
func (c *Client) FindAccount(ctx context.Context, login, server string) (*Account, error) {
	accounts, err := c.ListAccounts(ctx, login)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		a := accounts[i]
		if a.Login == login && a.Server == server && (a.Platform == "" || a.Platform == "mt5") {
			return &a, nil
		}
	}
	return nil, nil
}

// CreateAccount creates an account record and returns it
func (c *Client) CreateAccount(ctx context.Context, acc NewAccount) (*Account, error) {
	if acc.Type == "" {
		acc.Type = "cloud"
	}
	if acc.Platform == "" {
		acc.Platform = "mt5"
	}
	var resp createAccountResponse
	if err := c.do(ctx, http.MethodPost, c.accountsURL(), acc, &resp); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &Account{
		ID:       resp.ID,
		Name:     acc.Name,
		Login:    acc.Login,
		Server:   acc.Server,
		Platform: acc.Platform,
		Type:     acc.Type,
		State:    resp.State,
	}, nil
}

// GetAccount reads one account record
func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	var acc Account
	if err := c.do(ctx, http.MethodGet, c.accountsURL()+"/"+url.PathEscape(id), nil, &acc); err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &acc, nil
}

// Deploy starts the account terminal
func (c *Client) Deploy(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, c.accountsURL()+"/"+url.PathEscape(id)+"/deploy", nil, nil); err != nil {
		return fmt.Errorf("deploy account %s: %w", id, err)
	}
	return nil
}

// Undeploy stops the account terminal
func (c *Client) Undeploy(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, c.accountsURL()+"/"+url.PathEscape(id)+"/undeploy", nil, nil); err != nil {
		return fmt.Errorf("undeploy account %s: %w", id, err)
	}
	return nil
}
