// Package faucet claims testnet funds for the loaded accounts.
package faucet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/internal/ratelimit"
	"github.com/gateway-fm/activitybot/pkg/types"
)

// DefaultInterval is the spacing between consecutive claims.
const DefaultInterval = 2 * time.Second

// ErrNoTxHash is returned when the faucet answers without a transaction hash.
var ErrNoTxHash = errors.New("faucet returned no transaction hash")

// Recorder observes claim results.
type Recorder interface {
	RecordFaucetClaim(success bool)
}

// Config holds the faucet client configuration.
type Config struct {
	URL        string
	HTTPClient *http.Client
	Interval   time.Duration
	Metrics    Recorder
	Logger     *slog.Logger
}

// Client posts claim requests to the faucet.
type Client struct {
	url     string
	http    *http.Client
	limiter *ratelimit.Limiter
	metrics Recorder
	logger  *slog.Logger
}

// New creates a faucet client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     cfg.URL,
		http:    hc,
		limiter: ratelimit.New(interval),
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

type claimRequest struct {
	Address string `json:"address"`
}

type claimResponse struct {
	TxHash  string `json:"txHash"`
	Message string `json:"message"`
}

// Claim requests funds for one address and returns the faucet's transaction hash.
func (c *Client) Claim(ctx context.Context, address common.Address) (string, error) {
	body, err := json.Marshal(claimRequest{Address: address.Hex()})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post claim: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out claimResponse
	decodeErr := json.Unmarshal(respBody, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Message != "" {
			return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, out.Message)
		}
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if out.TxHash == "" {
		if out.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrNoTxHash, out.Message)
		}
		return "", ErrNoTxHash
	}
	return out.TxHash, nil
}

// ClaimAll claims for every address in order, spaced by the configured
// interval. A failed claim is logged and reported in its result; the rest
// still run. Cancelling ctx stops before the next claim.
func (c *Client) ClaimAll(ctx context.Context, addresses []common.Address) ([]types.FaucetResult, error) {
	c.logger.Info("starting faucet claim for all wallets", slog.Int("wallets", len(addresses)))

	results := make([]types.FaucetResult, 0, len(addresses))
	for _, addr := range addresses {
		if err := c.limiter.Wait(ctx); err != nil {
			return results, err
		}

		res := types.FaucetResult{Address: addr.Hex()}
		hash, err := c.Claim(ctx, addr)
		if err != nil {
			res.Error = err.Error()
			c.logger.Error("faucet claim failed",
				slog.String("address", addr.Hex()),
				slog.String("error", err.Error()),
			)
		} else {
			res.TxHash = hash
			c.logger.Log(ctx, eventlog.LevelSuccess, "faucet claim succeeded",
				slog.String("address", addr.Hex()),
				slog.String("tx", hash),
			)
		}
		if c.metrics != nil {
			c.metrics.RecordFaucetClaim(err == nil)
		}
		results = append(results, res)
	}

	c.logger.Log(ctx, eventlog.LevelSuccess, "finished faucet claims for all wallets")
	return results, nil
}
