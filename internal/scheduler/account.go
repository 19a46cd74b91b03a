package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/activitybot/internal/account"
	"github.com/gateway-fm/activitybot/internal/config"
	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/internal/pipeline"
	"github.com/gateway-fm/activitybot/internal/storage"
	"github.com/gateway-fm/activitybot/internal/txbuilder"
	"github.com/gateway-fm/activitybot/pkg/types"
)

// processAccount runs the bridge and stake repetitions of one account and
// reports whether it connected. Every failure is logged and skipped; only a
// stop request ends it early.
func (s *Scheduler) processAccount(ctx context.Context, run *types.CycleRun, index int, acc *account.Account, activity types.ActivityConfig) bool {
	n := index + 1
	s.setAddress(acc.Address.Hex())
	s.logger.Info("starting processing for account", slog.Int("account", n))

	var conn pipeline.Conn
	var closeConn func()
	err := s.inflight.Track(func() error {
		var err error
		conn, closeConn, err = s.connect(context.WithoutCancel(ctx), index)
		return err
	})
	if err != nil {
		run.ConnectFailures++
		s.logger.Error("failed to connect, skipping account",
			slog.Int("account", n),
			slog.String("error", err.Error()),
		)
		return false
	}
	if closeConn != nil {
		defer closeConn()
	}

	s.logger.Log(context.Background(), eventlog.LevelWait, "processing account",
		slog.Int("account", n),
		slog.String("address", acc.Address.Hex()),
	)

	dests := shuffled(s.rng, s.destinations)
	for b := 0; b < activity.BridgeRepetitions && !s.stopRequested(); b++ {
		s.bridgeOnce(ctx, run, conn, acc, n, b+1, dests[b%len(dests)], activity)

		if b < activity.BridgeRepetitions-1 && !s.stopRequested() {
			d := s.between(s.timing.BridgeGapMin, s.timing.BridgeGapMax)
			s.logger.Log(context.Background(), eventlog.LevelDelay, "waiting before next bridge",
				slog.Int("account", n), slog.Duration("delay", d))
			s.sleep(ctx, d)
		}
	}

	if activity.StakeRepetitions > 0 && !s.stopRequested() {
		d := s.between(s.timing.PreStakeMin, s.timing.PreStakeMax)
		s.logger.Log(context.Background(), eventlog.LevelWait, "waiting before staking",
			slog.Int("account", n), slog.Duration("delay", d))
		s.sleep(ctx, d)
	}

	vals := shuffled(s.rng, s.validators)
	for k := 0; k < activity.StakeRepetitions && !s.stopRequested(); k++ {
		s.stakeOnce(ctx, run, conn, acc, n, k+1, vals[k%len(vals)], activity)

		if k < activity.StakeRepetitions-1 && !s.stopRequested() {
			d := s.between(s.timing.StakeGapMin, s.timing.StakeGapMax)
			s.logger.Log(context.Background(), eventlog.LevelDelay, "waiting before next stake",
				slog.Int("account", n), slog.Duration("delay", d))
			s.sleep(ctx, d)
		}
	}
	return true
}

func (s *Scheduler) bridgeOnce(ctx context.Context, run *types.CycleRun, conn pipeline.Conn, acc *account.Account, n, rep int, dest config.Destination, activity types.ActivityConfig) {
	rec := &storage.OperationRecord{
		CycleID:    run.ID,
		Account:    acc.Address.Hex(),
		Kind:       types.OpBridge,
		Repetition: rep,
		Target:     dest.Name,
	}

	amount, err := txbuilder.RandomAmount(s.rng, activity.MinHlsBridge, activity.MaxHlsBridge)
	if err != nil {
		run.BridgeFailed++
		s.failed(rec, n, pipeline.Outcome{}, err)
		return
	}
	rec.Amount = amount
	wei, err := txbuilder.ParseAmount(amount)
	if err != nil {
		run.BridgeFailed++
		s.failed(rec, n, pipeline.Outcome{}, err)
		return
	}

	s.logger.Info("bridging",
		slog.Int("account", n),
		slog.Int("bridge", rep),
		slog.String("amount", amount),
		slog.String("destination", dest.Name),
	)

	opCtx := context.WithoutCancel(ctx)
	var out pipeline.Outcome
	err = s.inflight.Track(func() error {
		if err := s.op.CheckBridgeFunds(opCtx, conn, acc, wei); err != nil {
			return err
		}
		var err error
		out, err = s.op.Bridge(opCtx, conn, acc, pipeline.BridgeRequest{
			DestChainID: dest.ChainID,
			DestName:    dest.Name,
			Amount:      amount,
		})
		return err
	})

	var short *pipeline.InsufficientBalanceError
	switch {
	case errors.As(err, &short):
		run.BridgeSkipped++
		rec.Status = storage.StatusSkipped
		rec.ErrorReason = err.Error()
		s.logger.Error("bridge skipped",
			slog.Int("account", n),
			slog.Int("bridge", rep),
			slog.String("reason", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordOperation(types.OpBridge, "skipped")
		}
		s.record(rec)
	case err != nil:
		run.BridgeFailed++
		s.failed(rec, n, out, err)
	default:
		run.BridgeOK++
		rec.TxHash = out.Hash.Hex()
		rec.Status = storage.StatusConfirmed
		s.record(rec)
	}
}

func (s *Scheduler) stakeOnce(ctx context.Context, run *types.CycleRun, conn pipeline.Conn, acc *account.Account, n, rep int, val config.Validator, activity types.ActivityConfig) {
	rec := &storage.OperationRecord{
		CycleID:    run.ID,
		Account:    acc.Address.Hex(),
		Kind:       types.OpStake,
		Repetition: rep,
		Target:     val.Name,
	}

	amount, err := txbuilder.RandomAmount(s.rng, activity.MinHlsStake, activity.MaxHlsStake)
	if err != nil {
		run.StakeFailed++
		s.failed(rec, n, pipeline.Outcome{}, err)
		return
	}
	rec.Amount = amount

	s.logger.Info("staking",
		slog.Int("account", n),
		slog.Int("stake", rep),
		slog.String("amount", amount),
		slog.String("validator", val.Name),
	)

	var out pipeline.Outcome
	err = s.inflight.Track(func() error {
		var err error
		out, err = s.op.Stake(context.WithoutCancel(ctx), conn, acc, pipeline.StakeRequest{
			Validator:     val.Address,
			ValidatorName: val.Name,
			Amount:        amount,
		})
		return err
	})
	if err != nil {
		run.StakeFailed++
		s.failed(rec, n, out, err)
		return
	}

	run.StakeOK++
	rec.TxHash = out.Hash.Hex()
	rec.Status = storage.StatusConfirmed
	s.record(rec)
}

// failed logs and records an operation that did not confirm.
func (s *Scheduler) failed(rec *storage.OperationRecord, n int, out pipeline.Outcome, err error) {
	rec.ErrorReason = err.Error()
	switch {
	case out.Reverted:
		rec.Status = storage.StatusReverted
	case out.Hash != (common.Hash{}):
		rec.Status = storage.StatusUnconfirmed
	default:
		rec.Status = storage.StatusFailed
	}
	if out.Hash != (common.Hash{}) {
		rec.TxHash = out.Hash.Hex()
	}

	if errors.Is(err, account.ErrStopped) {
		s.interrupted()
	} else {
		s.logger.Error(fmt.Sprintf("%s failed", rec.Kind),
			slog.Int("account", n),
			slog.Int("repetition", rec.Repetition),
			slog.String("error", err.Error()),
		)
	}
	s.record(rec)
}

func (s *Scheduler) record(rec *storage.OperationRecord) {
	if s.history == nil {
		return
	}
	rec.At = s.clock.Now()
	if err := s.history.InsertOperation(context.Background(), rec); err != nil {
		s.logger.Debug("failed to record operation", slog.String("error", err.Error()))
	}
}

// shuffled returns a shuffled copy of items.
func shuffled[T any](rng interface{ Shuffle(int, func(int, int)) }, items []T) []T {
	out := append([]T(nil), items...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
