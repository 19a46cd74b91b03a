package pipeline

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/activitybot/internal/txbuilder"
)

// RevertedError is returned when a transaction was mined with a failure status.
type RevertedError struct {
	Receipt *types.Receipt
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted in block %s", e.Receipt.TxHash.Hex(), e.Receipt.BlockNumber)
}

// ConfirmationError is returned when no receipt arrived within the wait.
type ConfirmationError struct {
	Hash common.Hash
	Err  error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("no receipt for %s: %v", e.Hash.Hex(), e.Err)
}

func (e *ConfirmationError) Unwrap() error {
	return e.Err
}

// InsufficientBalanceError is a policy check failure, not a chain error.
type InsufficientBalanceError struct {
	Asset string // "native" or "token"
	Have  *big.Int
	Need  *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: have %s HLS, need %s HLS",
		e.Asset, txbuilder.FormatAmount(e.Have), txbuilder.FormatAmount(e.Need))
}
