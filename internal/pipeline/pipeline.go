// Package pipeline submits built calls: nonce, fees, signing, broadcast,
// confirmation, classification and the best-effort indexer sync.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/activitybot/internal/account"
	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/internal/metrics"
	"github.com/gateway-fm/activitybot/internal/txbuilder"
	ptypes "github.com/gateway-fm/activitybot/pkg/types"
)

// DefaultConfirmTimeout bounds the wait for a receipt.
const DefaultConfirmTimeout = 5 * time.Minute

// fallbackFee is used when the node cannot suggest a fee (1 gwei).
var fallbackFee = big.NewInt(1_000_000_000)

// Chain is the subset of *ethclient.Client the pipeline uses.
type Chain interface {
	bind.DeployBackend
	account.NonceSource
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Portal is the indexer sync surface; *rpc.HTTPClient satisfies it.
type Portal interface {
	SyncTransferHistory(ctx context.Context, addr common.Address) error
	SyncLastTransactions(ctx context.Context, addr common.Address) error
}

// Conn is one account's session: chain access and the portal on the same path.
type Conn struct {
	Chain  Chain
	Portal Portal
}

// Outcome is the result of one submission.
type Outcome struct {
	Hash      common.Hash
	Confirmed bool
	Reverted  bool
	Err       error
}

// Config for creating a Submitter.
type Config struct {
	Tracker        *account.Tracker
	ChainID        *big.Int
	Token          common.Address
	BridgeRouter   common.Address
	StakeRouter    common.Address
	UseLegacy      bool // Use legacy (type 0) transactions instead of EIP-1559
	ConfirmTimeout time.Duration
	Metrics        *metrics.PrometheusMetrics
	Latency        *metrics.ConfirmLatency
	Logger         *slog.Logger
}

// Submitter runs the submit-and-confirm round trip. It is not idempotent:
// every call takes a fresh nonce.
type Submitter struct {
	tracker        *account.Tracker
	signer         types.Signer
	chainID        *big.Int
	token          common.Address
	bridgeRouter   common.Address
	stakeRouter    common.Address
	useLegacy      bool
	confirmTimeout time.Duration
	metrics        *metrics.PrometheusMetrics
	latency        *metrics.ConfirmLatency
	logger         *slog.Logger
	now            func() time.Time
}

// New creates a Submitter.
func New(cfg Config) *Submitter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	bridgeRouter := cfg.BridgeRouter
	if bridgeRouter == (common.Address{}) {
		bridgeRouter = txbuilder.DefaultBridgeRouter
	}
	stakeRouter := cfg.StakeRouter
	if stakeRouter == (common.Address{}) {
		stakeRouter = txbuilder.DefaultStakeRouter
	}

	return &Submitter{
		tracker:        cfg.Tracker,
		signer:         types.LatestSignerForChainID(cfg.ChainID),
		chainID:        cfg.ChainID,
		token:          cfg.Token,
		bridgeRouter:   bridgeRouter,
		stakeRouter:    stakeRouter,
		useLegacy:      cfg.UseLegacy,
		confirmTimeout: timeout,
		metrics:        cfg.Metrics,
		latency:        cfg.Latency,
		logger:         logger,
		now:            time.Now,
	}
}

// Submit signs and sends b from acc and waits for its receipt.
//
// The nonce is taken from the tracker before anything else; a failed send
// leaves it consumed. The receipt wait uses its own timeout and ignores
// cancellation of ctx so an operation already broadcast is seen through.
func (s *Submitter) Submit(ctx context.Context, conn Conn, acc *account.Account, b *txbuilder.Built) (Outcome, error) {
	fail := func(err error) (Outcome, error) {
		s.record(b.Kind, "failed")
		return Outcome{Err: err}, err
	}

	nonce, err := s.tracker.Next(ctx, conn.Chain, acc.Address.Hex())
	if err != nil {
		return Outcome{Err: err}, err
	}

	tip, feeCap, err := s.fees(ctx, conn.Chain)
	if err != nil {
		return fail(fmt.Errorf("fees: %w", err))
	}

	tx := txbuilder.NewCallTx(s.chainID, nonce, b, tip, feeCap, s.useLegacy)
	signed, err := types.SignTx(tx, s.signer, acc.PrivateKey)
	if err != nil {
		return fail(fmt.Errorf("sign: %w", err))
	}

	sentAt := s.now()
	if err := conn.Chain.SendTransaction(ctx, signed); err != nil {
		return fail(fmt.Errorf("send: %w", err))
	}

	hash := signed.Hash()
	s.logger.Log(ctx, eventlog.LevelWait, "transaction sent, waiting for confirmation",
		slog.String("operation", string(b.Kind)),
		slog.String("target", b.Label),
		slog.String("hash", hash.Hex()),
		slog.Uint64("nonce", nonce),
	)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, conn.Chain, signed)
	if err == nil && receipt == nil {
		err = errors.New("empty receipt")
	}
	if err != nil {
		out := Outcome{Hash: hash, Err: &ConfirmationError{Hash: hash, Err: err}}
		s.record(b.Kind, "unconfirmed")
		return out, out.Err
	}

	elapsed := s.now().Sub(sentAt)
	if s.latency != nil {
		s.latency.Observe(elapsed)
	}
	if s.metrics != nil {
		s.metrics.RecordConfirmLatency(b.Kind, elapsed.Seconds())
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		out := Outcome{Hash: hash, Reverted: true, Err: &RevertedError{Receipt: receipt}}
		s.record(b.Kind, "reverted")
		return out, out.Err
	}

	s.record(b.Kind, "confirmed")
	s.logger.Log(ctx, eventlog.LevelSuccess, "transaction confirmed",
		slog.String("operation", string(b.Kind)),
		slog.String("target", b.Label),
		slog.String("amount", txbuilder.FormatAmount(b.Amount)),
		slog.String("hash", hash.Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
	)

	s.sync(ctx, conn, acc, b.Kind)

	return Outcome{Hash: hash, Confirmed: true}, nil
}

// sync nudges the indexer. Failures are logged and never change the outcome.
func (s *Submitter) sync(ctx context.Context, conn Conn, acc *account.Account, kind ptypes.OperationKind) {
	if conn.Portal == nil {
		return
	}

	var err error
	switch kind {
	case ptypes.OpBridge:
		err = conn.Portal.SyncTransferHistory(ctx, acc.Address)
	case ptypes.OpStake:
		err = conn.Portal.SyncLastTransactions(ctx, acc.Address)
	default:
		return
	}
	if err != nil {
		s.logger.Error("indexer sync failed",
			slog.String("operation", string(kind)),
			slog.String("address", acc.Address.Hex()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("indexer synced", slog.String("operation", string(kind)))
}

// fees returns the tip and fee cap: feeCap = 2*baseFee + tip.
func (s *Submitter) fees(ctx context.Context, chain Chain) (*big.Int, *big.Int, error) {
	tip, err := chain.SuggestGasTipCap(ctx)
	if err != nil {
		s.logger.Debug("tip suggestion unavailable, using 1 gwei", slog.String("error", err.Error()))
		tip = new(big.Int).Set(fallbackFee)
	}

	head, err := chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("latest header: %w", err)
	}
	if head.BaseFee == nil {
		return tip, new(big.Int).Set(tip), nil
	}

	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return tip, feeCap, nil
}

// MaxFeePerGas is the fee cap a transaction sent now would carry, or 1 gwei
// when the node cannot say.
func (s *Submitter) MaxFeePerGas(ctx context.Context, chain Chain) *big.Int {
	_, feeCap, err := s.fees(ctx, chain)
	if err != nil || feeCap.Sign() == 0 {
		return new(big.Int).Set(fallbackFee)
	}
	return feeCap
}

func (s *Submitter) record(kind ptypes.OperationKind, result string) {
	if s.metrics != nil {
		s.metrics.RecordOperation(kind, result)
	}
}
