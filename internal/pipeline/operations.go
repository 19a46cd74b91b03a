package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/activitybot/internal/account"
	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/internal/txbuilder"
)

// BridgeRequest is one bridge transfer to the sender's own address on the
// destination chain.
type BridgeRequest struct {
	DestChainID uint64
	DestName    string
	Amount      string // decimal HLS
}

// StakeRequest is one stake deposit.
type StakeRequest struct {
	Validator     string
	ValidatorName string
	Amount        string // decimal HLS
}

// Bridge approves the router if its allowance is short, waits for that
// approval to confirm, then builds and submits the bridge call.
func (s *Submitter) Bridge(ctx context.Context, conn Conn, acc *account.Account, req BridgeRequest) (Outcome, error) {
	amount, err := txbuilder.ParseAmount(req.Amount)
	if err != nil {
		return Outcome{Err: err}, err
	}

	if err := s.ensureAllowance(ctx, conn, acc, amount); err != nil {
		err = fmt.Errorf("approve: %w", err)
		return Outcome{Err: err}, err
	}

	built, err := txbuilder.BuildBridge(txbuilder.BridgeParams{
		Sender:      acc.Address.Hex(),
		Token:       s.token.Hex(),
		Router:      s.bridgeRouter,
		DestChainID: req.DestChainID,
		DestName:    req.DestName,
		Amount:      req.Amount,
	})
	if err != nil {
		return Outcome{Err: err}, err
	}
	return s.Submit(ctx, conn, acc, built)
}

// Stake builds and submits a stake call.
func (s *Submitter) Stake(ctx context.Context, conn Conn, acc *account.Account, req StakeRequest) (Outcome, error) {
	built, err := txbuilder.BuildStake(txbuilder.StakeParams{
		Sender:        acc.Address.Hex(),
		Validator:     req.Validator,
		ValidatorName: req.ValidatorName,
		Router:        s.stakeRouter,
		Amount:        req.Amount,
	})
	if err != nil {
		return Outcome{Err: err}, err
	}
	return s.Submit(ctx, conn, acc, built)
}

func (s *Submitter) ensureAllowance(ctx context.Context, conn Conn, acc *account.Account, amount *big.Int) error {
	allowance, err := s.tokenCall(ctx, conn.Chain, txbuilder.EncodeAllowance(acc.Address, s.bridgeRouter))
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	s.logger.Info("router allowance too low, approving",
		slog.String("address", acc.Address.Hex()),
		slog.String("allowance", txbuilder.FormatAmount(allowance)),
		slog.String("amount", txbuilder.FormatAmount(amount)),
	)

	_, err = s.Submit(ctx, conn, acc, txbuilder.BuildApprove(s.token, s.bridgeRouter, amount))
	return err
}

// tokenCall runs a read-only call against the token and decodes one uint256.
func (s *Submitter) tokenCall(ctx context.Context, chain Chain, data []byte) (*big.Int, error) {
	token := s.token
	ret, err := chain.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return txbuilder.DecodeUint256(ret)
}

// Balances returns the native and token balances of addr.
func (s *Submitter) Balances(ctx context.Context, chain Chain, addr common.Address) (native, token *big.Int, err error) {
	native, err = chain.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("native balance: %w", err)
	}
	token, err = s.tokenCall(ctx, chain, txbuilder.EncodeBalanceOf(addr))
	if err != nil {
		return nil, nil, fmt.Errorf("token balance: %w", err)
	}
	return native, token, nil
}

// CheckBridgeFunds requires enough native balance for the router gas limit at
// the current max fee and enough token balance for the amount.
func (s *Submitter) CheckBridgeFunds(ctx context.Context, conn Conn, acc *account.Account, amount *big.Int) error {
	native, token, err := s.Balances(ctx, conn.Chain, acc.Address)
	if err != nil {
		return err
	}

	s.logger.Log(ctx, eventlog.LevelWait, "balance checked",
		slog.String("address", acc.Address.Hex()),
		slog.String("native", txbuilder.FormatAmount(native)),
		slog.String("token", txbuilder.FormatAmount(token)),
	)

	gasCost := s.gasCost(ctx, conn.Chain)
	if native.Cmp(gasCost) < 0 {
		return &InsufficientBalanceError{Asset: "native", Have: native, Need: gasCost}
	}
	if token.Cmp(amount) < 0 {
		return &InsufficientBalanceError{Asset: "token", Have: token, Need: amount}
	}
	return nil
}

func (s *Submitter) gasCost(ctx context.Context, chain Chain) *big.Int {
	return new(big.Int).Mul(s.MaxFeePerGas(ctx, chain), new(big.Int).SetUint64(txbuilder.RouterGasLimit))
}
