// Package storage provides persistence for cycle history.
package storage

import (
	"time"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// OperationStatus is how one attempted operation ended.
type OperationStatus string

const (
	StatusConfirmed   OperationStatus = "confirmed"
	StatusReverted    OperationStatus = "reverted"
	StatusUnconfirmed OperationStatus = "unconfirmed" // broadcast, no receipt within the wait
	StatusFailed      OperationStatus = "failed"      // never broadcast
	StatusSkipped     OperationStatus = "skipped"     // insufficient funds
)

// OperationRecord is a single bridge or stake attempt.
// JSON tags use camelCase to match the API.
type OperationRecord struct {
	ID          int64               `json:"id"`
	CycleID     string              `json:"cycleId"`
	Account     string              `json:"account"`
	Kind        types.OperationKind `json:"kind"`
	Repetition  int                 `json:"repetition"`
	Target      string              `json:"target"` // destination chain or validator name
	Amount      string              `json:"amount"` // decimal HLS
	TxHash      string              `json:"txHash,omitempty"`
	Status      OperationStatus     `json:"status"`
	ErrorReason string              `json:"errorReason,omitempty"`
	At          time.Time           `json:"at"`
}

// PaginatedOperations represents a paginated list of operation records.
type PaginatedOperations struct {
	Operations []OperationRecord `json:"operations"`
	Total      int               `json:"total"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}
