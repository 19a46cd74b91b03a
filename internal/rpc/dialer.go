package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/net/proxy"

	"github.com/gateway-fm/activitybot/internal/account"
)

// Connection is an RPC session bound to one network path.
type Connection struct {
	Eth    *ethclient.Client
	Portal *HTTPClient
	Proxy  string // redacted proxy URL, empty when direct
	Direct bool
}

// Close releases the underlying client.
func (c *Connection) Close() {
	c.Eth.Close()
}

// DialerConfig holds configuration for opening connections.
type DialerConfig struct {
	URL     string
	ChainID uint64
	// Attempts per proxy before falling back to a direct connection.
	Attempts int
	// Backoff between attempts.
	Backoff time.Duration
	// Timeout bounds each HTTP request, including the chain id check.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnDial observes every attempt; used for metrics.
	OnDial func(direct, ok bool)
}

// DefaultDialerConfig returns the default retry policy: 3 attempts, 1s apart.
func DefaultDialerConfig(url string, chainID uint64) DialerConfig {
	return DialerConfig{
		URL:      url,
		ChainID:  chainID,
		Attempts: 3,
		Backoff:  time.Second,
		Timeout:  30 * time.Second,
	}
}

// Dialer opens connections, optionally through a proxy.
type Dialer struct {
	cfg    DialerConfig
	logger *slog.Logger
}

// NewDialer creates a dialer.
func NewDialer(cfg DialerConfig) *Dialer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg, logger: logger}
}

// Open returns a verified connection. With a proxy, up to Attempts proxied
// tries are made before one direct try; without one, the tries are direct.
// Each failed attempt is logged with its number and reason.
func (d *Dialer) Open(ctx context.Context, proxyURL string) (*Connection, error) {
	label := Redact(proxyURL)

	var lastErr error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		conn, err := d.attempt(ctx, proxyURL)
		d.observe(proxyURL == "", err == nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		d.logger.Error("connection attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("of", d.cfg.Attempts),
			slog.String("proxy", label),
			slog.String("error", err.Error()),
		)

		if attempt < d.cfg.Attempts {
			if err := sleepCtx(ctx, d.cfg.Backoff); err != nil {
				return nil, err
			}
		}
	}

	if proxyURL == "" {
		return nil, lastErr
	}

	d.logger.Warn("proxy unusable, falling back to direct connection",
		slog.String("proxy", label),
		slog.String("error", lastErr.Error()),
	)

	conn, err := d.attempt(ctx, "")
	d.observe(true, err == nil)
	if err != nil {
		return nil, &TransportError{Op: "direct fallback", Err: err}
	}
	return conn, nil
}

func (d *Dialer) observe(direct, ok bool) {
	if d.cfg.OnDial != nil {
		d.cfg.OnDial(direct, ok)
	}
}

func (d *Dialer) attempt(ctx context.Context, proxyURL string) (*Connection, error) {
	label := Redact(proxyURL)

	hc, err := d.httpClient(proxyURL)
	if err != nil {
		return nil, &TransportError{Op: "proxy setup", Proxy: label, Err: err}
	}

	rc, err := gethrpc.DialHTTPWithClient(d.cfg.URL, hc)
	if err != nil {
		return nil, &TransportError{Op: "dial", Proxy: label, Err: err}
	}
	eth := ethclient.NewClient(rc)

	idCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	chainID, err := eth.ChainID(idCtx)
	if err != nil {
		eth.Close()
		return nil, &TransportError{Op: "chain id check", Proxy: label, Err: err}
	}
	if chainID.Uint64() != d.cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("%w: got %s, want %d", ErrChainMismatch, chainID, d.cfg.ChainID)
	}

	portalCfg := DefaultClientConfig(d.cfg.URL)
	portalCfg.HTTPClient = hc
	portalCfg.Logger = d.logger

	return &Connection{
		Eth:    eth,
		Portal: NewHTTPClient(portalCfg),
		Proxy:  label,
		Direct: proxyURL == "",
	}, nil
}

// httpClient builds a client whose transport egresses through proxyURL:
// http(s) proxies via CONNECT, socks via a context dialer.
func (d *Dialer) httpClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if account.IsSOCKS(proxyURL) {
			dialer, err := proxy.FromURL(u, &net.Dialer{Timeout: 10 * time.Second})
			if err != nil {
				return nil, fmt.Errorf("socks dialer: %w", err)
			}
			cd, ok := dialer.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks dialer for %s does not support contexts", u.Scheme)
			}
			transport.DialContext = cd.DialContext
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	return &http.Client{Transport: transport, Timeout: d.cfg.Timeout}, nil
}

// Redact hides proxy credentials for logs.
func Redact(proxyURL string) string {
	if proxyURL == "" {
		return ""
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return "invalid-proxy-url"
	}
	return u.Redacted()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
