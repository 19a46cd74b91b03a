// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/activitybot/internal/eventlog"
)

// Config holds process configuration.
type Config struct {
	RPCURL             string
	ChainID            int64
	TokenAddress       string
	BridgeRouter       string
	StakeRouter        string
	UseLegacy          bool   // Send legacy (type 0) transactions instead of EIP-1559
	KeysPath           string // Newline-delimited private keys
	ProxiesPath        string // Newline-delimited proxy URLs, optional
	ActivityConfigPath string // Persisted ActivityConfig (JSON)
	DatabasePath       string // Path to SQLite database file
	ListenAddr         string
	FaucetURL          string
	FaucetInterval     time.Duration
	ConfirmTimeout     time.Duration
	RPCTimeout         time.Duration
	LogLevel           string
	CORSOrigin         string // Allowed origin, or "*" for all (default: "*")
	AutoStart          bool   // Start a cycle as soon as the process is up
}

// Defaults
const (
	DefaultRPCURL             = "https://testnet1.helioschainlabs.org/"
	DefaultChainID            = 42000
	DefaultTokenAddress       = "0xD4949664cD82660AaE99bEdc034a0deA8A0bd517"
	DefaultBridgeRouter       = "0x0000000000000000000000000000000000000900"
	DefaultStakeRouter        = "0x0000000000000000000000000000000000000800"
	DefaultKeysPath           = "pk.txt"
	DefaultProxiesPath        = "proxy.txt"
	DefaultActivityConfigPath = "config.json"
	DefaultDatabasePath       = "./data/activitybot.db"
	DefaultListenAddr         = ":8080"
	DefaultFaucetURL          = "https://testnet.helioschain.network/faucet"
	DefaultFaucetInterval     = 2 * time.Second
	DefaultConfirmTimeout     = 5 * time.Minute
	DefaultRPCTimeout         = 30 * time.Second
	DefaultLogLevel           = "info"
	DefaultCORSOrigin         = "*"
)

// Load reads configuration from environment variables and command-line flags.
// Flags take precedence over environment variables; args excludes the program name.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("activitybot", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.RPCURL, "rpc", getEnvOrDefault("RPC_URL", DefaultRPCURL), "Chain JSON-RPC URL")
	fs.Int64Var(&cfg.ChainID, "chainid", getEnvInt64OrDefault("CHAIN_ID", DefaultChainID), "Expected chain ID")
	fs.StringVar(&cfg.TokenAddress, "token", getEnvOrDefault("TOKEN_ADDRESS", DefaultTokenAddress), "HLS token address")
	fs.StringVar(&cfg.BridgeRouter, "bridge-router", getEnvOrDefault("BRIDGE_ROUTER", DefaultBridgeRouter), "Bridge router address")
	fs.StringVar(&cfg.StakeRouter, "stake-router", getEnvOrDefault("STAKE_ROUTER", DefaultStakeRouter), "Stake router address")
	fs.BoolVar(&cfg.UseLegacy, "legacy", getEnvBoolOrDefault("USE_LEGACY_TX", false), "Send legacy transactions")
	fs.StringVar(&cfg.KeysPath, "keys", getEnvOrDefault("KEYS_PATH", DefaultKeysPath), "Private keys file")
	fs.StringVar(&cfg.ProxiesPath, "proxies", getEnvOrDefault("PROXIES_PATH", DefaultProxiesPath), "Proxy list file")
	fs.StringVar(&cfg.ActivityConfigPath, "activity-config", getEnvOrDefault("ACTIVITY_CONFIG_PATH", DefaultActivityConfigPath), "Activity config file")
	fs.StringVar(&cfg.DatabasePath, "database", getEnvOrDefault("DATABASE_PATH", DefaultDatabasePath), "SQLite database path")
	fs.StringVar(&cfg.ListenAddr, "listen", getEnvOrDefault("LISTEN_ADDR", DefaultListenAddr), "HTTP API listen address")
	fs.StringVar(&cfg.FaucetURL, "faucet", getEnvOrDefault("FAUCET_URL", DefaultFaucetURL), "Faucet endpoint")
	fs.DurationVar(&cfg.FaucetInterval, "faucet-interval", getEnvDurationOrDefault("FAUCET_INTERVAL", DefaultFaucetInterval), "Pause between faucet claims")
	fs.DurationVar(&cfg.ConfirmTimeout, "confirm-timeout", getEnvDurationOrDefault("CONFIRM_TIMEOUT", DefaultConfirmTimeout), "Receipt wait per transaction")
	fs.DurationVar(&cfg.RPCTimeout, "rpc-timeout", getEnvDurationOrDefault("RPC_TIMEOUT", DefaultRPCTimeout), "Timeout for a single RPC request")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnvOrDefault("LOG_LEVEL", DefaultLogLevel), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", getEnvOrDefault("CORS_ALLOWED_ORIGINS", DefaultCORSOrigin), "Allowed CORS origin")
	fs.BoolVar(&cfg.AutoStart, "autostart", getEnvBoolOrDefault("AUTO_START", false), "Start a cycle on boot")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	u, err := url.Parse(c.RPCURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("RPC URL must be an http(s) URL: %q", c.RPCURL)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain ID must be positive")
	}
	for name, addr := range map[string]string{
		"token address": c.TokenAddress,
		"bridge router": c.BridgeRouter,
		"stake router":  c.StakeRouter,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a hex address: %q", name, addr)
		}
	}
	if c.KeysPath == "" {
		return fmt.Errorf("keys path is required")
	}
	if c.ActivityConfigPath == "" {
		return fmt.Errorf("activity config path is required")
	}
	if c.FaucetInterval <= 0 {
		return fmt.Errorf("faucet interval must be positive")
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm timeout must be positive")
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if _, err := eventlog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// getEnvOrDefault returns environment variable or default value.
func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvInt64OrDefault returns environment variable as int64 or default value.
func getEnvInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
