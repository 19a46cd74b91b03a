// Package types contains public API types for the activity bot.
// These types form the external interface and must remain backwards-compatible.
package types

import "time"

// RunState represents the cycle scheduler state.
type RunState string

const (
	StateIdle                RunState = "idle"
	StateRunning             RunState = "running"
	StateStopping            RunState = "stopping"
	StateWaitingForNextCycle RunState = "waiting_for_next_cycle"
)

// Label returns the human-readable status line for the state.
func (s RunState) Label() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateWaitingForNextCycle:
		return "Waiting for next cycle"
	default:
		return "Idle"
	}
}

// OperationKind identifies the on-chain operation a transaction performs.
type OperationKind string

const (
	OpBridge  OperationKind = "bridge"
	OpStake   OperationKind = "stake"
	OpApprove OperationKind = "approve"
)

// Severity is the tag attached to every log event shown to the operator.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWait    Severity = "wait"
	SeverityDelay   Severity = "delay"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// LogEvent is one timestamped, severity-tagged log line.
type LogEvent struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// ActivityConfig is the operator-tunable policy for a cycle.
// JSON keys match the persisted config file.
type ActivityConfig struct {
	BridgeRepetitions int     `json:"bridgeRepetitions"`
	MinHlsBridge      float64 `json:"minHlsBridge"`
	MaxHlsBridge      float64 `json:"maxHlsBridge"`
	StakeRepetitions  int     `json:"stakeRepetitions"`
	MinHlsStake       float64 `json:"minHlsStake"`
	MaxHlsStake       float64 `json:"maxHlsStake"`
}

// StatusSnapshot is a point-in-time view of the scheduler for the presentation layer.
type StatusSnapshot struct {
	State        RunState   `json:"state"`
	StatusText   string     `json:"statusText"`
	Running      bool       `json:"running"`
	Address      string     `json:"address,omitempty"` // account currently being processed
	AccountCount int        `json:"accountCount"`
	BridgeReps   int        `json:"bridgeReps"`
	StakeReps    int        `json:"stakeReps"`
	InFlight     int64      `json:"inFlight"`
	CycleID      string     `json:"cycleId,omitempty"`
	NextCycleAt  *time.Time `json:"nextCycleAt,omitempty"`

	// Confirmation latency of operations in the current process.
	ConfirmLatency *LatencyStats `json:"confirmLatency,omitempty"`
}

// CycleResult is how a cycle ended.
type CycleResult string

const (
	CycleRunning   CycleResult = "running"
	CycleCompleted CycleResult = "completed"
	CycleStopped   CycleResult = "stopped"
)

// CycleRun is the persisted summary of one cycle.
type CycleRun struct {
	ID              string      `json:"id"`
	StartedAt       time.Time   `json:"startedAt"`
	FinishedAt      *time.Time  `json:"finishedAt,omitempty"`
	Result          CycleResult `json:"result"`
	Accounts        int         `json:"accounts"`
	BridgeOK        int         `json:"bridgeOk"`
	BridgeSkipped   int         `json:"bridgeSkipped"`
	BridgeFailed    int         `json:"bridgeFailed"`
	StakeOK         int         `json:"stakeOk"`
	StakeFailed     int         `json:"stakeFailed"`
	ConnectFailures int         `json:"connectFailures"`

	// Policy in effect when the cycle started.
	Config *ActivityConfig `json:"config,omitempty"`
}

// WalletInfo holds balances for one loaded account.
type WalletInfo struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Native  string `json:"native,omitempty"` // HLS, 4 decimals
	Token   string `json:"token,omitempty"`  // HLS token, 4 decimals
	Proxy   string `json:"proxy,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FaucetResult is the outcome of one faucet claim.
type FaucetResult struct {
	Address string `json:"address"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"` // ms
	Max     float64         `json:"max"` // ms
	Avg     float64         `json:"avg"` // ms
	P50     float64         `json:"p50"` // ms
	P75     float64         `json:"p75"` // ms
	P90     float64         `json:"p90"` // ms
	P95     float64         `json:"p95"` // ms
	P99     float64         `json:"p99"` // ms
	Buckets []LatencyBucket `json:"buckets"`
}

// HistoryResponse is a page of cycle runs.
type HistoryResponse struct {
	Runs   []CycleRun `json:"runs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// ConfigResponse is returned by the config endpoints.
type ConfigResponse struct {
	Config  ActivityConfig `json:"config"`
	Changed bool           `json:"changed"`
}
