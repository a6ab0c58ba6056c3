// Package eodcloser is a small client for the closer's HTTP status API.
package eodcloser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnhealthy is returned by Health when the runner loop is not consuming
// ticks.
var ErrUnhealthy = errors.New("closer unhealthy")

// Status mirrors the /status response.
type Status struct {
	Timezone      string    `json:"timezone"`
	LocalTime     time.Time `json:"local_time"`
	Date          string    `json:"date"`
	Phase         string    `json:"phase"`
	PreAlertFired bool      `json:"pre_alert_fired"`
	ClosingFired  bool      `json:"closing_fired"`
	NextAlert     time.Time `json:"next_alert"`
	NextClose     time.Time `json:"next_close"`
	LastTick      time.Time `json:"last_tick"`
	Ticks         int64     `json:"ticks"`
	LastRun       *Run      `json:"last_run,omitempty"`
	Running       bool      `json:"running"`
}

// Run is the outcome of the most recent trigger dispatch. RealizedPnL is a
// decimal string; Positions and Orders are -1 when listing failed.
type Run struct {
	Kind            string    `json:"kind"`
	LocalDate       string    `json:"local_date"`
	FiredAt         time.Time `json:"fired_at"`
	Positions       int       `json:"positions"`
	Orders          int       `json:"orders"`
	PositionsClosed int       `json:"positions_closed"`
	PositionsFailed int       `json:"positions_failed"`
	OrdersCancelled int       `json:"orders_cancelled"`
	OrdersFailed    int       `json:"orders_failed"`
	RealizedPnL     string    `json:"realized_pnl"`
	NotifyStatus    string    `json:"notify_status"`
	Failures        []string  `json:"failures,omitempty"`
}

// Client talks to a running eod-closer.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the status server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the runner snapshot.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	resp, err := c.get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /status: unexpected status %d", resp.StatusCode)
	}

	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &s, nil
}

// Health returns nil when the closer reports healthy and ErrUnhealthy when
// it answers 503.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusServiceUnavailable:
		return ErrUnhealthy
	default:
		return fmt.Errorf("GET /healthz: unexpected status %d", resp.StatusCode)
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return resp, nil
}
