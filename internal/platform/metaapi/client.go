// Package metaapi is a small REST client for the MetaApi cloud terminal: the provisioning
// API that manages account records and deployments, and the client API that reads account
// state from a deployed terminal.
package metaapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	// DefaultProvisioningURL is the MetaApi provisioning API
	DefaultProvisioningURL = "https://mt-provisioning-api-v1.agiliumtrade.agiliumtrade.ai"
	// DefaultRegion is used to build the client API URL when none is configured
	DefaultRegion = "new-york"

	clientURLTemplate = "https://mt-client-api-v1.%s.agiliumtrade.ai"
)

// Options configure a Client. Zero values fall back to MetaApi defaults.
type Options struct {
	Token           string
	ProvisioningURL string
	ClientURL       string
	Region          string
	// RateLimit is the number of outbound requests per second. Zero disables limiting.
	RateLimit float64
	// PollInterval is the first delay between state polls while waiting for deployment
	// or synchronization.
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// Client talks to the MetaApi REST endpoints on behalf of one API token.
type Client struct {
	token           string
	provisioningURL string
	clientURL       string
	pollInterval    time.Duration
	httpClient      *http.Client
	limiter         *rate.Limiter
}

// NewClient creates a MetaApi client
func NewClient(opts Options) *Client {
	provisioningURL := opts.ProvisioningURL
	if provisioningURL == "" {
		provisioningURL = DefaultProvisioningURL
	}
	clientURL := opts.ClientURL
	if clientURL == "" {
		region := opts.Region
		if region == "" {
			region = DefaultRegion
		}
		clientURL = fmt.Sprintf(clientURLTemplate, region)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	c := &Client{
		token:           opts.Token,
		provisioningURL: strings.TrimRight(provisioningURL, "/"),
		clientURL:       strings.TrimRight(clientURL, "/"),
		pollInterval:    pollInterval,
		httpClient:      httpClient,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// do sends one request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("auth-token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
