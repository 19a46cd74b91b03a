package storage

import (
	"context"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// Storage defines the persistence interface for cycle history.
type Storage interface {
	// Cycle lifecycle
	CreateCycleRun(ctx context.Context, run *types.CycleRun) error
	CompleteCycleRun(ctx context.Context, run *types.CycleRun) error
	GetCycleRun(ctx context.Context, id string) (*types.CycleRun, error)

	// History queries
	ListCycleRuns(ctx context.Context, limit, offset int) (*types.HistoryResponse, error)
	DeleteCycleRun(ctx context.Context, id string) error

	// Operation log, one row per attempted bridge or stake
	InsertOperation(ctx context.Context, op *OperationRecord) error
	ListOperations(ctx context.Context, cycleID string, limit, offset int) (*PaginatedOperations, error)

	// Lifecycle
	Close() error
}
