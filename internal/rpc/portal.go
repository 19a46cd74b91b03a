package rpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Indexer sync methods exposed by the chain's RPC beyond the standard eth namespace.
const (
	methodTransferHistory  = "eth_getHyperionAccountTransferTxsByPageAndSize"
	methodLastTransactions = "eth_getAccountLastTransactionsInfo"
)

// SyncTransferHistory queries the first page of the account's cross-chain
// transfers, which nudges the indexer after a bridge.
func (c *HTTPClient) SyncTransferHistory(ctx context.Context, addr common.Address) error {
	if _, err := c.Call(ctx, methodTransferHistory, []interface{}{addr.Hex(), "0x1", "0xa"}); err != nil {
		return fmt.Errorf("%s: %w", methodTransferHistory, err)
	}
	return nil
}

// SyncLastTransactions queries the account's recent transactions, which nudges
// the indexer after a stake.
func (c *HTTPClient) SyncLastTransactions(ctx context.Context, addr common.Address) error {
	if _, err := c.Call(ctx, methodLastTransactions, []interface{}{addr.Hex()}); err != nil {
		return fmt.Errorf("%s: %w", methodLastTransactions, err)
	}
	return nil
}
