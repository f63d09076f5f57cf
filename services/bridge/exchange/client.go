// Package exchange talks to the Hyperliquid info and action endpoints.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"hlbridge/services/bridge/bridgeerr"
)

const (
	// MainnetURL is the production API base.
	MainnetURL = "https://api.hyperliquid.xyz"
	// TestnetURL is the testnet API base.
	TestnetURL = "https://api.hyperliquid-testnet.xyz"

	infoPath   = "/info"
	actionPath = "/exchange"

	defaultInfoTimeout   = 15 * time.Second
	defaultActionTimeout = 30 * time.Second
	defaultRatePerSecond = 5
	defaultBurst         = 2
	maxBodyBytes         = 4 << 20
)

// RequestObserver receives the latency and outcome of every exchange call.
type RequestObserver func(endpoint, outcome string, elapsed time.Duration)

// Config configures the exchange client.
type Config struct {
	BaseURL        string
	InfoTimeout    time.Duration
	ActionTimeout  time.Duration
	RatePerSecond  float64
	Burst          int
	Transport      http.RoundTripper
	ObserveRequest RequestObserver
}

// Client is an HTTP client for the exchange API. It is safe for concurrent use.
type Client struct {
	baseURL       string
	infoTimeout   time.Duration
	actionTimeout time.Duration
	httpClient    *http.Client
	limiter       *rate.Limiter
	observe       RequestObserver
}

// NewClient constructs a client targeting cfg.BaseURL, defaulting to mainnet.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = MainnetURL
	}
	infoTimeout := cfg.InfoTimeout
	if infoTimeout <= 0 {
		infoTimeout = defaultInfoTimeout
	}
	actionTimeout := cfg.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = defaultActionTimeout
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = defaultRatePerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		baseURL:       base,
		infoTimeout:   infoTimeout,
		actionTimeout: actionTimeout,
		httpClient:    &http.Client{Transport: otelhttp.NewTransport(transport)},
		limiter:       rate.NewLimiter(rate.Limit(perSecond), burst),
		observe:       cfg.ObserveRequest,
	}
}

// BaseURL returns the API base the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) info(ctx context.Context, payload any, out any) error {
	return c.post(ctx, infoPath, c.infoTimeout, bridgeerr.ErrGatewayUnavailable, payload, out)
}

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, rejectKind error, payload any, out any) (err error) {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("exchange: client not configured")
	}
	started := time.Now()
	outcome := "ok"
	defer func() {
		if c.observe != nil {
			if err != nil {
				outcome = "error"
			}
			c.observe(path, outcome, time.Since(started))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return &bridgeerr.HTTPError{Endpoint: path, Err: err}
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("exchange: encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("exchange: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &bridgeerr.HTTPError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &bridgeerr.HTTPError{Endpoint: path, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &bridgeerr.HTTPError{Kind: rejectKind, Endpoint: path, Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &bridgeerr.HTTPError{
			Kind:     rejectKind,
			Endpoint: path,
			Status:   resp.StatusCode,
			Body:     string(body),
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
