// Package prices fetches wholesale electricity prices and keeps the
// forecast store filled with them.
package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kilianp07/solarcharge/auth"
	"github.com/kilianp07/solarcharge/config"
)

// Client queries the wholesale market API.
type Client struct {
	baseURL string
	cred    *auth.ClientCred
	http    *http.Client
}

func NewClient(cfg config.PricesConfig) *Client {
	cfg.SetDefaults()
	return &Client{
		baseURL: cfg.BaseURL,
		cred:    auth.NewClientCred(cfg.Auth),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// StatusError is returned for non 200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

// Fetch retrieves the prices between from and to. An unauthorized response
// triggers one token refresh before giving up.
func (c *Client) Fetch(ctx context.Context, from, to time.Time) (*Response, error) {
	resp, err := c.do(ctx, from, to)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		if _, err := c.cred.ForceRefresh(ctx); err != nil {
			return nil, err
		}
		return c.do(ctx, from, to)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, from, to time.Time) (*Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("start_date", from.Format(time.RFC3339))
	q.Set("end_date", to.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.cred.SetAuthHeader(req); err != nil {
		return nil, fmt.Errorf("failed to set auth header: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}
