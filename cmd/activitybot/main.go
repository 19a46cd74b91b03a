// Command activitybot runs the daily bridge and stake activity for a set of
// testnet accounts and exposes an operator API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/gateway-fm/activitybot/internal/account"
	"github.com/gateway-fm/activitybot/internal/config"
	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/internal/faucet"
	"github.com/gateway-fm/activitybot/internal/metrics"
	"github.com/gateway-fm/activitybot/internal/pipeline"
	"github.com/gateway-fm/activitybot/internal/rpc"
	"github.com/gateway-fm/activitybot/internal/scheduler"
	"github.com/gateway-fm/activitybot/internal/storage"
	"github.com/gateway-fm/activitybot/internal/transport"
)

// drainGrace is added to the confirmation timeout when waiting for a
// stopping cycle on shutdown.
const drainGrace = 10 * time.Second

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	level, _ := eventlog.ParseLevel(cfg.LogLevel)
	journal := eventlog.NewJournal(eventlog.DefaultCapacity)
	logger := eventlog.NewLogger(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: eventlog.ReplaceLevel,
	}), journal)
	slog.SetDefault(logger)

	if err := run(cfg, journal, logger); err != nil {
		logger.Error("activitybot failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, journal *eventlog.Journal, logger *slog.Logger) error {
	accounts := loadAccounts(cfg.KeysPath, logger)
	proxies := loadProxies(cfg.ProxiesPath, logger)

	prom := metrics.NewPrometheusMetrics(nil)
	latency := metrics.NewConfirmLatency()
	stopFlag := new(atomic.Bool)
	tracker := account.NewTracker(stopFlag.Load)

	submitter := pipeline.New(pipeline.Config{
		Tracker:        tracker,
		ChainID:        big.NewInt(cfg.ChainID),
		Token:          common.HexToAddress(cfg.TokenAddress),
		BridgeRouter:   common.HexToAddress(cfg.BridgeRouter),
		StakeRouter:    common.HexToAddress(cfg.StakeRouter),
		UseLegacy:      cfg.UseLegacy,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Metrics:        prom,
		Latency:        latency,
		Logger:         logger,
	})

	dialCfg := rpc.DefaultDialerConfig(cfg.RPCURL, uint64(cfg.ChainID))
	dialCfg.Timeout = cfg.RPCTimeout
	dialCfg.Logger = logger
	dialCfg.OnDial = prom.RecordDial
	connect := dialConnect(rpc.NewDialer(dialCfg), proxies)

	var store storage.Storage
	var history scheduler.History
	if cfg.DatabasePath != "" {
		sqlite, err := storage.NewSQLiteStorage(cfg.DatabasePath, logger)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		defer sqlite.Close()
		store, history = sqlite, sqlite
		logger.Info("initialized storage", slog.String("path", cfg.DatabasePath))
	}

	activity := config.NewStore(cfg.ActivityConfigPath, logger)
	activity.Load()

	sched := scheduler.New(scheduler.Config{
		Accounts: accounts,
		Activity: activity.Get,
		Operator: submitter,
		Connect:  connect,
		Tracker:  tracker,
		StopFlag: stopFlag,
		InFlight: metrics.NewInFlight(prom.SetInFlight),
		History:  history,
		Metrics:  prom,
		Latency:  latency,
		Logger:   logger,
	})

	pingCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	pingCfg.Timeout = cfg.RPCTimeout
	pingCfg.MaxRetries = 0
	pingCfg.Logger = logger

	bot := &ActivityBot{
		accounts:  accounts,
		proxies:   proxies,
		scheduler: sched,
		activity:  activity,
		journal:   journal,
		store:     store,
		faucet: faucet.New(faucet.Config{
			URL:      cfg.FaucetURL,
			Interval: cfg.FaucetInterval,
			Metrics:  prom,
			Logger:   logger,
		}),
		balances: submitter,
		connect:  connect,
		ping:     rpcPing(rpc.NewHTTPClient(pingCfg)),
		logger:   logger,
	}

	server := transport.NewServer(bot, bot, logger, cfg.CORSOrigin)
	defer server.Close()
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		sched.Stop()
		select {
		case <-sched.Done():
		case <-time.After(cfg.ConfirmTimeout + drainGrace):
			logger.Warn("cycle did not drain before shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.AutoStart {
		g.Go(func() error {
			// A failed start is already logged by the scheduler.
			_ = sched.Start()
			return nil
		})
	}

	return g.Wait()
}

// loadAccounts reads the key file. Problems are logged and leave the bot
// running with whatever keys were valid, so the operator API stays usable.
func loadAccounts(path string, logger *slog.Logger) []*account.Account {
	keys, err := account.LoadKeys(path)
	if keys != nil && len(keys.Invalid) > 0 {
		logger.Warn("skipped invalid private keys",
			slog.String("path", path),
			slog.Any("lines", keys.Invalid),
		)
	}
	if err != nil {
		logger.Error("failed to load private keys", slog.String("path", path), slog.String("error", err.Error()))
		if keys == nil {
			return nil
		}
	}
	logger.Info("loaded private keys", slog.Int("accounts", len(keys.Accounts)))
	return keys.Accounts
}

// loadProxies reads the optional proxy file. Without proxies every account
// connects directly.
func loadProxies(path string, logger *slog.Logger) account.Proxies {
	if path == "" {
		return nil
	}
	proxies, invalid, err := account.LoadProxies(path)
	if err != nil {
		logger.Error("failed to load proxies", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	if len(invalid) > 0 {
		logger.Warn("skipped invalid proxies",
			slog.String("path", path),
			slog.Any("lines", invalid),
		)
	}
	if len(proxies) == 0 {
		logger.Info("no proxies configured, using direct connections")
	} else {
		logger.Info("loaded proxies", slog.Int("proxies", len(proxies)))
	}
	return proxies
}
