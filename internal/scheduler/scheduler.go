// Package scheduler runs the daily activity cycle: every account in order,
// bridges then stakes, then one recurrence 24 hours later.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gateway-fm/activitybot/internal/account"
	"github.com/gateway-fm/activitybot/internal/config"
	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/internal/metrics"
	"github.com/gateway-fm/activitybot/internal/pipeline"
	"github.com/gateway-fm/activitybot/internal/storage"
	"github.com/gateway-fm/activitybot/pkg/types"
)

var (
	// ErrAlreadyRunning is returned by Start while a cycle is running or stopping.
	ErrAlreadyRunning = errors.New("activity already running")
	// ErrNoAccounts is returned by Start when no keys were loaded.
	ErrNoAccounts = errors.New("no valid private keys loaded")
)

// Operator performs the on-chain work. *pipeline.Submitter satisfies it.
type Operator interface {
	Bridge(ctx context.Context, conn pipeline.Conn, acc *account.Account, req pipeline.BridgeRequest) (pipeline.Outcome, error)
	Stake(ctx context.Context, conn pipeline.Conn, acc *account.Account, req pipeline.StakeRequest) (pipeline.Outcome, error)
	CheckBridgeFunds(ctx context.Context, conn pipeline.Conn, acc *account.Account, amount *big.Int) error
}

// ConnectFunc opens the session for the account at index. The returned close
// func may be nil.
type ConnectFunc func(ctx context.Context, index int) (pipeline.Conn, func(), error)

// History persists cycle summaries. *storage.SQLiteStorage satisfies it.
type History interface {
	CreateCycleRun(ctx context.Context, run *types.CycleRun) error
	CompleteCycleRun(ctx context.Context, run *types.CycleRun) error
	InsertOperation(ctx context.Context, op *storage.OperationRecord) error
}

// Timing holds the pauses of a cycle. Ranges are inclusive.
type Timing struct {
	BridgeGapMin time.Duration
	BridgeGapMax time.Duration
	PreStakeMin  time.Duration
	PreStakeMax  time.Duration
	StakeGapMin  time.Duration
	StakeGapMax  time.Duration
	AccountGap   time.Duration
	Recurrence   time.Duration
	DrainPoll    time.Duration
}

// DefaultTiming returns the production pauses.
func DefaultTiming() Timing {
	return Timing{
		BridgeGapMin: 30 * time.Second,
		BridgeGapMax: 60 * time.Second,
		PreStakeMin:  10 * time.Second,
		PreStakeMax:  15 * time.Second,
		StakeGapMin:  30 * time.Second,
		StakeGapMax:  60 * time.Second,
		AccountGap:   10 * time.Second,
		Recurrence:   24 * time.Hour,
		DrainPoll:    time.Second,
	}
}

// Config for creating a Scheduler.
type Config struct {
	Accounts     []*account.Account
	Activity     func() types.ActivityConfig
	Destinations []config.Destination // defaults to config.Destinations
	Validators   []config.Validator   // defaults to config.Validators
	Operator     Operator
	Connect      ConnectFunc
	Tracker      *account.Tracker
	StopFlag     *atomic.Bool // read by Tracker; owned by the scheduler once passed
	InFlight     *metrics.InFlight
	History      History // optional
	Metrics      *metrics.PrometheusMetrics
	Latency      *metrics.ConfirmLatency
	Timing       Timing
	Clock        Clock
	Rand         *rand.Rand
	Logger       *slog.Logger
}

// Scheduler owns the run state. At most one cycle runs at a time.
type Scheduler struct {
	accounts     []*account.Account
	activity     func() types.ActivityConfig
	destinations []config.Destination
	validators   []config.Validator
	op           Operator
	connect      ConnectFunc
	tracker      *account.Tracker
	stopFlag     *atomic.Bool
	inflight     *metrics.InFlight
	history      History
	metrics      *metrics.PrometheusMetrics
	latency      *metrics.ConfirmLatency
	timing       Timing
	clock        Clock
	rng          *rand.Rand
	logger       *slog.Logger

	interruptLogged atomic.Bool

	mu          sync.Mutex
	state       types.RunState
	cancel      context.CancelFunc
	done        chan struct{}
	cycleID     string
	address     string
	timer       Timer
	timerGen    uint64
	nextCycleAt *time.Time
}

// New creates a Scheduler in the idle state.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	stopFlag := cfg.StopFlag
	if stopFlag == nil {
		stopFlag = new(atomic.Bool)
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = account.NewTracker(stopFlag.Load)
	}
	inflight := cfg.InFlight
	if inflight == nil {
		inflight = metrics.NewInFlight(nil)
	}
	activity := cfg.Activity
	if activity == nil {
		activity = func() types.ActivityConfig { return types.ActivityConfig{} }
	}
	destinations := cfg.Destinations
	if len(destinations) == 0 {
		destinations = config.Destinations
	}
	validators := cfg.Validators
	if len(validators) == 0 {
		validators = config.Validators
	}
	timing := cfg.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}

	done := make(chan struct{})
	close(done)

	s := &Scheduler{
		accounts:     cfg.Accounts,
		activity:     activity,
		destinations: destinations,
		validators:   validators,
		op:           cfg.Operator,
		connect:      cfg.Connect,
		tracker:      tracker,
		stopFlag:     stopFlag,
		inflight:     inflight,
		history:      cfg.History,
		metrics:      cfg.Metrics,
		latency:      cfg.Latency,
		timing:       timing,
		clock:        clock,
		rng:          rng,
		logger:       logger,
		state:        types.StateIdle,
		done:         done,
	}
	if s.metrics != nil {
		s.metrics.SetAccounts(len(s.accounts))
		s.metrics.SetRunState(types.StateIdle)
	}
	return s
}

// Start begins a cycle now. Starting while waiting for the next cycle
// cancels the pending recurrence.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Scheduler) startLocked() error {
	switch s.state {
	case types.StateRunning, types.StateStopping:
		s.logger.Warn("daily activity is already running")
		return ErrAlreadyRunning
	}
	if len(s.accounts) == 0 {
		s.logger.Error("no valid private keys found")
		return ErrNoAccounts
	}

	s.clearTimerLocked()
	s.stopFlag.Store(false)
	s.interruptLogged.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.cycleID = uuid.NewString()
	s.setStateLocked(types.StateRunning)

	go s.run(ctx, s.cycleID, s.done)
	return nil
}

// Stop requests a graceful stop. A running cycle finishes its current
// operation, then drains; a pending recurrence is cancelled at once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case types.StateIdle:
		s.logger.Info("no activity is running")
		return
	case types.StateStopping:
		return
	case types.StateWaitingForNextCycle:
		s.clearTimerLocked()
		s.tracker.Reset()
		s.setStateLocked(types.StateIdle)
		s.logger.Log(context.Background(), eventlog.LevelSuccess, "daily activity stopped successfully")
		return
	}

	s.stopFlag.Store(true)
	s.cancel()
	s.setStateLocked(types.StateStopping)
	s.logger.Info("stopping daily activity, waiting for the current operation to finish")
}

// State returns the current run state.
func (s *Scheduler) State() types.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when the latest cycle's worker has exited.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Status returns a snapshot for the presentation layer.
func (s *Scheduler) Status() types.StatusSnapshot {
	act := s.activity()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := types.StatusSnapshot{
		State:        s.state,
		StatusText:   s.state.Label(),
		Running:      s.state == types.StateRunning || s.state == types.StateStopping,
		Address:      s.address,
		AccountCount: len(s.accounts),
		BridgeReps:   act.BridgeRepetitions,
		StakeReps:    act.StakeRepetitions,
		InFlight:     s.inflight.Load(),
	}
	if s.state != types.StateIdle {
		snap.CycleID = s.cycleID
	}
	if s.nextCycleAt != nil {
		t := *s.nextCycleAt
		snap.NextCycleAt = &t
	}
	if s.latency != nil && s.latency.Count() > 0 {
		snap.ConfirmLatency = s.latency.Stats()
	}
	return snap
}

func (s *Scheduler) setStateLocked(state types.RunState) {
	s.state = state
	if s.metrics != nil {
		s.metrics.SetRunState(state)
	}
}

func (s *Scheduler) clearTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
	s.nextCycleAt = nil
	if s.metrics != nil {
		s.metrics.SetNextCycle(0)
	}
}

// recur is the timer callback. A timer that lost a race with Stop or Start
// finds a newer generation and does nothing.
func (s *Scheduler) recur(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.StateWaitingForNextCycle || s.timerGen != gen {
		return
	}
	s.timer = nil
	if err := s.startLocked(); err != nil {
		s.logger.Error("scheduled cycle did not start", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) setAddress(addr string) {
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
}

func (s *Scheduler) stopRequested() bool {
	return s.stopFlag.Load()
}

// run is the single worker of a cycle.
func (s *Scheduler) run(ctx context.Context, id string, done chan struct{}) {
	defer close(done)

	activity := s.activity()
	run := &types.CycleRun{
		ID:        id,
		StartedAt: s.clock.Now(),
		Result:    types.CycleRunning,
		Accounts:  len(s.accounts),
		Config:    &activity,
	}
	if s.history != nil {
		if err := s.history.CreateCycleRun(context.Background(), run); err != nil {
			s.logger.Error("failed to record cycle start", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("starting daily activity for all accounts",
		slog.String("cycle", id),
		slog.Int("accounts", len(s.accounts)),
		slog.Int("bridgeRepetitions", activity.BridgeRepetitions),
		slog.Int("stakeRepetitions", activity.StakeRepetitions),
	)

	for i, acc := range s.accounts {
		if s.stopRequested() {
			break
		}
		connected := s.processAccount(ctx, run, i, acc, activity)

		// An account that never connected moves straight on to the next one.
		if connected && i < len(s.accounts)-1 && !s.stopRequested() {
			s.logger.Log(context.Background(), eventlog.LevelDelay, "waiting before next account",
				slog.Duration("delay", s.timing.AccountGap))
			s.sleep(ctx, s.timing.AccountGap)
		}
	}

	s.setAddress("")
	s.finish(run)
}

// finish drains a stopped cycle, resets nonce state and settles the next state.
func (s *Scheduler) finish(run *types.CycleRun) {
	if s.stopRequested() {
		s.drain()
	}
	s.tracker.Reset()
	now := s.clock.Now()
	run.FinishedAt = &now

	s.mu.Lock()
	var next time.Time
	if s.stopFlag.Load() {
		run.Result = types.CycleStopped
		s.setStateLocked(types.StateIdle)
	} else {
		run.Result = types.CycleCompleted
		s.clearTimerLocked()
		next = now.Add(s.timing.Recurrence)
		s.nextCycleAt = &next
		gen := s.timerGen
		s.timer = s.clock.AfterFunc(s.timing.Recurrence, func() { s.recur(gen) })
		s.setStateLocked(types.StateWaitingForNextCycle)
		if s.metrics != nil {
			s.metrics.SetNextCycle(next.Unix())
		}
	}
	s.cancel()
	s.mu.Unlock()

	if run.Result == types.CycleStopped {
		s.logger.Log(context.Background(), eventlog.LevelSuccess, "daily activity stopped successfully",
			slog.String("cycle", run.ID))
	} else {
		s.logger.Log(context.Background(), eventlog.LevelSuccess, "all accounts processed, waiting for next cycle",
			slog.String("cycle", run.ID),
			slog.Time("next", next),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordCycle(run.Result)
	}
	if s.history != nil {
		if err := s.history.CompleteCycleRun(context.Background(), run); err != nil {
			s.logger.Error("failed to record cycle result", slog.String("error", err.Error()))
		}
	}
}

// drain blocks until no operation is suspended.
func (s *Scheduler) drain() {
	ticker := time.NewTicker(s.timing.DrainPoll)
	defer ticker.Stop()

	for {
		n := s.inflight.Load()
		if n <= 0 {
			return
		}
		s.logger.Info("waiting for in-flight operations to complete", slog.Int64("count", n))
		<-ticker.C
	}
}

// sleep pauses for d unless the cycle is stopped. The pause counts as in-flight.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	release := s.inflight.Enter()
	defer release()

	if !Sleep(ctx, d) {
		s.interrupted()
	}
}

// interrupted logs the interruption once per cycle.
func (s *Scheduler) interrupted() {
	if s.interruptLogged.CompareAndSwap(false, true) {
		s.logger.Info("process interrupted")
	}
}

// between returns a uniform duration in [lo, hi] at millisecond resolution.
func (s *Scheduler) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int((hi - lo) / time.Millisecond)
	return lo + time.Duration(s.rng.IntN(span+1))*time.Millisecond
}
