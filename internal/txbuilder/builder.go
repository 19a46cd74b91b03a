// Package txbuilder encodes calldata for the bridge and stake router calls and
// the ERC-20 calls around them. Encoders are pure: no network access.
package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/activitybot/internal/account"
	ptypes "github.com/gateway-fm/activitybot/pkg/types"
)

// Router precompiles and the gas limit used for router calls.
var (
	DefaultBridgeRouter = common.HexToAddress("0x0000000000000000000000000000000000000900")
	DefaultStakeRouter  = common.HexToAddress("0x0000000000000000000000000000000000000800")
)

const (
	// RouterGasLimit is the fixed gas limit for bridge and stake calls.
	RouterGasLimit uint64 = 1_500_000
	// ApproveGasLimit is the fixed gas limit for token approvals.
	ApproveGasLimit uint64 = 120_000
)

// Built is an encoded call ready to be signed.
type Built struct {
	Kind     ptypes.OperationKind
	To       common.Address
	Data     []byte
	GasLimit uint64
	// Amount is the token amount moved, in wei. The call carries no native value.
	Amount *big.Int
	// Label describes the target for logs, e.g. the destination chain name.
	Label string
}

// NewCallTx creates either a DynamicFeeTx or LegacyTx for b.
// For legacy transactions, gasFeeCap is used as the gas price.
func NewCallTx(chainID *big.Int, nonce uint64, b *Built, gasTipCap, gasFeeCap *big.Int, useLegacy bool) *types.Transaction {
	to := b.To
	if useLegacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasFeeCap,
			Gas:      b.GasLimit,
			To:       &to,
			Value:    new(big.Int),
			Data:     b.Data,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       b.GasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      b.Data,
	})
}

// ParseAddress validates a hex address.
func ParseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q", account.ErrInvalidAddress, field, s)
	}
	return common.HexToAddress(s), nil
}

// word returns the i-th 32-byte word of b.
func word(b []byte, i int) []byte {
	return b[i*32 : (i+1)*32]
}
