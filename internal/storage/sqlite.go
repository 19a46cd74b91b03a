package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage instance. A nil logger uses
// slog.Default().
func NewSQLiteStorage(dbPath string, logger *slog.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycle_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		result TEXT NOT NULL DEFAULT 'running',
		accounts INTEGER DEFAULT 0,
		bridge_ok INTEGER DEFAULT 0,
		bridge_skipped INTEGER DEFAULT 0,
		bridge_failed INTEGER DEFAULT 0,
		stake_ok INTEGER DEFAULT 0,
		stake_failed INTEGER DEFAULT 0,
		connect_failures INTEGER DEFAULT 0,
		config TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cycle_runs_started ON cycle_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL,
		account TEXT NOT NULL,
		kind TEXT NOT NULL,
		repetition INTEGER NOT NULL,
		target TEXT,
		amount TEXT,
		tx_hash TEXT,
		status TEXT NOT NULL,
		error_reason TEXT,
		at DATETIME NOT NULL,
		FOREIGN KEY (cycle_id) REFERENCES cycle_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_operations_cycle ON operations(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_operations_hash ON operations(tx_hash);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// unmarshalJSON decodes a non-critical JSON column. A corrupt value is logged
// and left zero so the query still succeeds.
func (s *SQLiteStorage) unmarshalJSON(data string, v any, field string, runID string) bool {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		s.logger.Warn("failed to unmarshal JSON field",
			slog.String("field", field),
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
			slog.Int("data_len", len(data)),
		)
		return false
	}
	return true
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateCycleRun inserts a cycle in the running state.
func (s *SQLiteStorage) CreateCycleRun(ctx context.Context, run *types.CycleRun) error {
	var configJSON sql.NullString
	if run.Config != nil {
		data, err := json.Marshal(run.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		configJSON = nullString(string(data))
	}

	result := run.Result
	if result == "" {
		result = types.CycleRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_runs (id, started_at, result, accounts, config)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt, result, run.Accounts, configJSON)

	return err
}

// CompleteCycleRun stores the final counters and result of a cycle.
func (s *SQLiteStorage) CompleteCycleRun(ctx context.Context, run *types.CycleRun) error {
	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cycle_runs SET
			finished_at = ?,
			result = ?,
			bridge_ok = ?,
			bridge_skipped = ?,
			bridge_failed = ?,
			stake_ok = ?,
			stake_failed = ?,
			connect_failures = ?
		WHERE id = ?
	`, finishedAt, run.Result, run.BridgeOK, run.BridgeSkipped, run.BridgeFailed,
		run.StakeOK, run.StakeFailed, run.ConnectFailures, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cycle run %s not found", run.ID)
	}
	return nil
}

const cycleColumns = `id, started_at, finished_at, result, accounts,
	COALESCE(bridge_ok, 0), COALESCE(bridge_skipped, 0), COALESCE(bridge_failed, 0),
	COALESCE(stake_ok, 0), COALESCE(stake_failed, 0), COALESCE(connect_failures, 0),
	config`

// GetCycleRun retrieves a single cycle run by ID. It returns nil, nil if absent.
func (s *SQLiteStorage) GetCycleRun(ctx context.Context, id string) (*types.CycleRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycle_runs WHERE id = ?`, id)

	run, err := s.scanCycleRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListCycleRuns returns a paginated list of cycle runs, newest first.
func (s *SQLiteStorage) ListCycleRuns(ctx context.Context, limit, offset int) (*types.HistoryResponse, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycle_runs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cycleColumns+`
		FROM cycle_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []types.CycleRun{}
	for rows.Next() {
		run, err := s.scanCycleRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &types.HistoryResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// DeleteCycleRun deletes a cycle run and its operations.
func (s *SQLiteStorage) DeleteCycleRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cycle_runs WHERE id = ?", id)
	return err
}

// InsertOperation appends one operation record and sets its ID.
func (s *SQLiteStorage) InsertOperation(ctx context.Context, op *OperationRecord) error {
	at := op.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (cycle_id, account, kind, repetition, target, amount, tx_hash, status, error_reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, op.CycleID, op.Account, op.Kind, op.Repetition, nullString(op.Target), nullString(op.Amount),
		nullString(op.TxHash), op.Status, nullString(op.ErrorReason), at)
	if err != nil {
		return err
	}
	op.ID, err = res.LastInsertId()
	return err
}

// ListOperations returns the operations of one cycle in insertion order.
func (s *SQLiteStorage) ListOperations(ctx context.Context, cycleID string, limit, offset int) (*PaginatedOperations, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operations WHERE cycle_id = ?", cycleID).Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, account, kind, repetition, target, amount, tx_hash, status, error_reason, at
		FROM operations
		WHERE cycle_id = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`, cycleID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []OperationRecord{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedOperations{
		Operations: ops,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStorage) scanCycleRun(sc scanner) (*types.CycleRun, error) {
	var run types.CycleRun
	var finishedAt sql.NullTime
	var configJSON sql.NullString

	err := sc.Scan(&run.ID, &run.StartedAt, &finishedAt, &run.Result, &run.Accounts,
		&run.BridgeOK, &run.BridgeSkipped, &run.BridgeFailed,
		&run.StakeOK, &run.StakeFailed, &run.ConnectFailures,
		&configJSON)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if configJSON.Valid && configJSON.String != "" {
		var cfg types.ActivityConfig
		if s.unmarshalJSON(configJSON.String, &cfg, "config", run.ID) {
			run.Config = &cfg
		}
	}
	return &run, nil
}

func scanOperation(sc scanner) (*OperationRecord, error) {
	var op OperationRecord
	var target, amount, txHash, errorReason sql.NullString

	err := sc.Scan(&op.ID, &op.CycleID, &op.Account, &op.Kind, &op.Repetition,
		&target, &amount, &txHash, &op.Status, &errorReason, &op.At)
	if err != nil {
		return nil, err
	}

	op.Target = target.String
	op.Amount = amount.String
	op.TxHash = txHash.String
	op.ErrorReason = errorReason.String
	return &op, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
