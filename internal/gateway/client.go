// Package gateway is the HTTP client for the MultiSafepay JSON API. It does
// exactly one request per call: timeouts and non-2xx replies are surfaced to
// the caller, never retried here.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	internal "github.com/eventtix/multisafepay-provider/internal"
)

// requestTimeout bounds every gateway call. A timed-out call counts as a
// transport failure.
const requestTimeout = 20 * time.Second

type Client struct {
	postBase string
	getBase  string
	apiUser  string
	apiPass  string
	http     *http.Client
	logger   *slog.Logger
}

type Option func(*Client)

// WithBaseURLs overrides the derived hosts, used by tests to point the
// client at a local double.
func WithBaseURLs(postBase, getBase string) Option {
	return func(c *Client) {
		c.postBase = postBase
		c.getBase = getBase
	}
}

// NewClient derives the live/test hosts from the settings endpoint: posts go
// to www (live) or testapi (test), reads go to api (live) or testapi (test).
func NewClient(settings internal.ProviderSettings, logger *slog.Logger, opts ...Option) *Client {
	postEnv, getEnv := "www", "api"
	if settings.TestMode() {
		postEnv, getEnv = "testapi", "testapi"
	}

	c := &Client{
		postBase: fmt.Sprintf("https://%s.multisafepay.com/v1/json", postEnv),
		getBase:  fmt.Sprintf("https://%s.multisafepay.com/v1/json", getEnv),
		apiUser:  settings.APIUser,
		apiPass:  settings.APIPass,
		http:     &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends a JSON body to a gateway endpoint. It returns a *Response on
// 2xx, a *Error on any other status, and a plain error when no response was
// received at all.
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.postBase, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, endpoint)
}

// Get reads from a gateway endpoint.
func (c *Client) Get(ctx context.Context, endpoint string) (*Response, error) {
	url := fmt.Sprintf("%s/%s", c.getBase, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}

	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) (*Response, error) {
	req.SetBasicAuth(c.apiUser, c.apiPass)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("multisafepay request failed",
			"endpoint", endpoint,
			"error", err)
		return nil, fmt.Errorf("multisafepay request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("multisafepay response read failed",
			"endpoint", endpoint,
			"error", err)
		return nil, fmt.Errorf("multisafepay response read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &Error{
			StatusCode: resp.StatusCode,
			Body:       body,
		}
		// Best effort; a non-JSON body leaves the structured fields empty.
		_ = json.Unmarshal(body, gwErr)

		c.logger.Error("multisafepay rejected request",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", string(body))
		return nil, gwErr
	}

	c.logger.Debug("multisafepay request ok",
		"endpoint", endpoint,
		"status", resp.StatusCode)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
