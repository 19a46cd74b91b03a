package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/gateway-fm/activitybot/internal/account"
	"github.com/gateway-fm/activitybot/internal/config"
	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/internal/faucet"
	"github.com/gateway-fm/activitybot/internal/pipeline"
	"github.com/gateway-fm/activitybot/internal/rpc"
	"github.com/gateway-fm/activitybot/internal/scheduler"
	"github.com/gateway-fm/activitybot/internal/storage"
	"github.com/gateway-fm/activitybot/internal/txbuilder"
	"github.com/gateway-fm/activitybot/pkg/types"
)

// walletConcurrency bounds parallel balance refreshes.
const walletConcurrency = 4

// BalanceReader reads native and token balances. *pipeline.Submitter satisfies it.
type BalanceReader interface {
	Balances(ctx context.Context, chain pipeline.Chain, addr common.Address) (native, token *big.Int, err error)
}

// ActivityBot wires the scheduler, config store, journal, faucet and history
// behind the operator API. It implements transport.ActivityAPI and
// transport.HealthChecker.
type ActivityBot struct {
	accounts  []*account.Account
	proxies   account.Proxies
	scheduler *scheduler.Scheduler
	activity  *config.Store
	journal   *eventlog.Journal
	store     storage.Storage // nil when history is disabled
	faucet    *faucet.Client
	balances  BalanceReader
	connect   scheduler.ConnectFunc
	ping      func(ctx context.Context) error
	logger    *slog.Logger
}

// dialConnect adapts a Dialer to the scheduler's ConnectFunc, routing the
// account at index through its proxy.
func dialConnect(dialer *rpc.Dialer, proxies account.Proxies) scheduler.ConnectFunc {
	return func(ctx context.Context, index int) (pipeline.Conn, func(), error) {
		conn, err := dialer.Open(ctx, proxies.For(index))
		if err != nil {
			return pipeline.Conn{}, nil, err
		}
		return pipeline.Conn{Chain: conn.Eth, Portal: conn.Portal}, conn.Close, nil
	}
}

// rpcPing returns a readiness check that asks the node for its chain id.
func rpcPing(client *rpc.HTTPClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.Call(ctx, "eth_chainId", nil)
		return err
	}
}

func (b *ActivityBot) Status() types.StatusSnapshot { return b.scheduler.Status() }
func (b *ActivityBot) StartCycle() error            { return b.scheduler.Start() }
func (b *ActivityBot) StopCycle()                   { b.scheduler.Stop() }

func (b *ActivityBot) GetConfig() types.ActivityConfig { return b.activity.Get() }

func (b *ActivityBot) UpdateConfig(p config.ActivityPatch) (types.ActivityConfig, bool, error) {
	return b.activity.Update(p)
}

func (b *ActivityBot) Logs(limit int) []types.LogEvent { return b.journal.Recent(limit) }

func (b *ActivityBot) ClearLogs() {
	b.journal.Clear()
	b.logger.Info("logs cleared")
}

func (b *ActivityBot) SubscribeLogs() (<-chan types.LogEvent, func()) {
	return b.journal.Subscribe(0)
}

// Wallets refreshes every account's balances through its own connection.
// A failure is reported on that wallet only.
func (b *ActivityBot) Wallets(ctx context.Context) []types.WalletInfo {
	wallets := make([]types.WalletInfo, len(b.accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(walletConcurrency)
	for i, acc := range b.accounts {
		wallets[i] = types.WalletInfo{
			Index:   i,
			Address: acc.Address.Hex(),
			Proxy:   rpc.Redact(b.proxies.For(i)),
		}
		g.Go(func() error {
			native, token, err := b.walletBalances(gctx, i, acc.Address)
			if err != nil {
				wallets[i].Error = err.Error()
				b.logger.Error("failed to refresh wallet",
					slog.Int("account", i+1),
					slog.String("error", err.Error()),
				)
				return nil
			}
			wallets[i].Native = native
			wallets[i].Token = token
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Debug("wallets refreshed", slog.Int("wallets", len(wallets)))
	return wallets
}

func (b *ActivityBot) walletBalances(ctx context.Context, index int, addr common.Address) (native, token string, err error) {
	conn, closeConn, err := b.connect(ctx, index)
	if err != nil {
		return "", "", fmt.Errorf("connect: %w", err)
	}
	if closeConn != nil {
		defer closeConn()
	}

	n, t, err := b.balances.Balances(ctx, conn.Chain, addr)
	if err != nil {
		return "", "", err
	}
	return txbuilder.FormatAmount(n), txbuilder.FormatAmount(t), nil
}

// ClaimFaucet claims faucet funds for every loaded account.
func (b *ActivityBot) ClaimFaucet(ctx context.Context) ([]types.FaucetResult, error) {
	addrs := make([]common.Address, len(b.accounts))
	for i, acc := range b.accounts {
		addrs[i] = acc.Address
	}
	return b.faucet.ClaimAll(ctx, addrs)
}

// GetHistoryPaginated returns paginated cycle history from storage.
func (b *ActivityBot) GetHistoryPaginated(limit, offset int) (*types.HistoryResponse, error) {
	if b.store == nil {
		return &types.HistoryResponse{Runs: []types.CycleRun{}, Total: 0, Limit: limit, Offset: offset}, nil
	}
	return b.store.ListCycleRuns(context.Background(), limit, offset)
}

// GetCycleRun returns one cycle summary, or nil when unknown.
func (b *ActivityBot) GetCycleRun(id string) (*types.CycleRun, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.GetCycleRun(context.Background(), id)
}

// GetCycleOperations returns the operations recorded for a cycle.
func (b *ActivityBot) GetCycleOperations(id string, limit, offset int) (*storage.PaginatedOperations, error) {
	if b.store == nil {
		return &storage.PaginatedOperations{Operations: []storage.OperationRecord{}, Total: 0, Limit: limit, Offset: offset}, nil
	}
	return b.store.ListOperations(context.Background(), id, limit, offset)
}

// DeleteCycleRun deletes a cycle and its operations.
func (b *ActivityBot) DeleteCycleRun(id string) error {
	if b.store == nil {
		return nil
	}
	return b.store.DeleteCycleRun(context.Background(), id)
}

// CheckRPC checks chain RPC connectivity.
func (b *ActivityBot) CheckRPC() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return b.ping(ctx)
}
