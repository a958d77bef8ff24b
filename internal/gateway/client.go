// Package gateway reads ledger state from a network gateway over HTTP.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/better-wallet/better-signer/internal/logger"
	"github.com/better-wallet/better-signer/pkg/types"
)

const (
	constructionPath = "/transaction/construction"
	networkPath      = "/status/network-configuration"
)

// Config configures the gateway client
type Config struct {
	URL            string
	RequestTimeout time.Duration
	RetryCount     int
	RetryWait      time.Duration
}

// DefaultConfig returns the defaults used when a field is left zero
func DefaultConfig(baseURL string) Config {
	return Config{
		URL:            baseURL,
		RequestTimeout: 10 * time.Second,
		RetryCount:     2,
		RetryWait:      250 * time.Millisecond,
	}
}

// Client is a gateway API client
type Client struct {
	rest *resty.Client
}

type ledgerState struct {
	Network string `json:"network"`
	Epoch   uint64 `json:"epoch"`
}

type constructionResponse struct {
	LedgerState ledgerState `json:"ledger_state"`
}

type networkConfigurationResponse struct {
	NetworkID   uint8  `json:"network_id"`
	NetworkName string `json:"network_name"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New creates a client for the gateway at cfg.URL
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway URL: %q", cfg.URL)
	}

	defaults := DefaultConfig(cfg.URL)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaults.RetryWait
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	rest := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4 * cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return r == nil || r.Request == nil || r.Request.Context().Err() == nil
			}
			return r.StatusCode() >= 500
		})

	rest.OnAfterResponse(func(c *resty.Client, r *resty.Response) error {
		logger.Debug(r.Request.Context(), "gateway response",
			"method", r.Request.Method,
			"url", r.Request.URL,
			"status", r.StatusCode(),
			"duration_ms", r.Time().Milliseconds(),
		)
		return nil
	})

	return &Client{rest: rest}, nil
}

// CurrentEpoch returns the epoch of the gateway's current ledger state
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	var out constructionResponse
	if err := c.post(ctx, constructionPath, &out); err != nil {
		return 0, err
	}
	return out.LedgerState.Epoch, nil
}

// NetworkID returns the id of the network the gateway serves
func (c *Client) NetworkID(ctx context.Context) (types.NetworkID, error) {
	var out networkConfigurationResponse
	if err := c.post(ctx, networkPath, &out); err != nil {
		return 0, err
	}
	return types.NetworkID(out.NetworkID), nil
}

func (c *Client) post(ctx context.Context, path string, out any) error {
	var apiErr errorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{}).
		SetResult(out).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("gateway %s: %w", path, ctxErr)
		}
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("gateway %s returned %d: %s", path, resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("gateway %s returned %d", path, resp.StatusCode())
	}
	return nil
}
