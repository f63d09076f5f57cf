// Package reconcile confirms that a transfer submitted on one ledger has been
// credited on another. A run snapshots every observed ledger before the
// transfer is submitted, then polls until one ledger has grown by at least the
// expected amount scaled by a tolerance, or the time budget runs out. When the
// budget runs out a ledger-history source, if configured, gets the final say.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hlbridge/services/bridge/bridgeerr"
)

const (
	// DefaultInterval is the delay between polls.
	DefaultInterval = 6 * time.Second
	// DepositTimeout bounds the wait for an exchange credit.
	DepositTimeout = 600 * time.Second
	// WithdrawTimeout bounds the wait for an on-chain credit.
	WithdrawTimeout = 900 * time.Second
)

// DefaultTolerance accepts credits up to 2% below the expected amount.
var DefaultTolerance = decimal.RequireFromString("0.98")

// LedgerKind identifies the ledger a snapshot was taken from.
type LedgerKind string

const (
	OnChain      LedgerKind = "onchain"
	ExchangeSpot LedgerKind = "exchange_spot"
	ExchangePerp LedgerKind = "exchange_perp"
)

// Snapshot is a single balance observation.
type Snapshot struct {
	Ledger     LedgerKind
	Address    string
	ObservedAt time.Time
	Amount     decimal.Decimal
}

// Observer samples the balance of one ledger.
type Observer interface {
	Ledger() LedgerKind
	Observe(ctx context.Context) (decimal.Decimal, error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc struct {
	Kind LedgerKind
	Fn   func(ctx context.Context) (decimal.Decimal, error)
}

// Ledger returns the configured ledger kind.
func (o ObserverFunc) Ledger() LedgerKind { return o.Kind }

// Observe invokes the configured function.
func (o ObserverFunc) Observe(ctx context.Context) (decimal.Decimal, error) {
	if o.Fn == nil {
		return decimal.Zero, errors.New("reconcile: observer function missing")
	}
	return o.Fn(ctx)
}

// History sums the collateral credited to an account since an instant.
type History interface {
	SumCredits(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// HistoryFunc adapts a function to the History interface.
type HistoryFunc func(ctx context.Context, since time.Time) (decimal.Decimal, error)

// SumCredits invokes f.
func (f HistoryFunc) SumCredits(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return f(ctx, since)
}

// Metrics receives poll and outcome events.
type Metrics interface {
	ObservePoll(ledger string, failed bool)
	ObserveOutcome(outcome string, elapsed time.Duration)
}

// Config captures the dependencies of a Reconciler.
type Config struct {
	Address       string
	Observers     []Observer
	Fallback      History
	FallbackSince time.Time
	Expected      decimal.Decimal
	Tolerance     decimal.Decimal
	Interval      time.Duration
	Timeout       time.Duration
	Now           func() time.Time
	Sleep         func(ctx context.Context, d time.Duration) error
	Logger        *slog.Logger
	Metrics       Metrics
}

// Reconciler runs one reconciliation. It is not reusable across transfers.
type Reconciler struct {
	address       string
	observers     []Observer
	fallback      History
	fallbackSince time.Time
	expected      decimal.Decimal
	minDelta      decimal.Decimal
	interval      time.Duration
	timeout       time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	logger        *slog.Logger
	metrics       Metrics
}

// MinDelta returns expected × tolerance.
func MinDelta(expected, tolerance decimal.Decimal) decimal.Decimal {
	return expected.Mul(tolerance)
}

// New builds a reconciler.
func New(cfg Config) (*Reconciler, error) {
	if len(cfg.Observers) == 0 {
		return nil, errors.New("reconcile: at least one observer is required")
	}
	for i, obs := range cfg.Observers {
		if obs == nil {
			return nil, fmt.Errorf("reconcile: observer %d is nil", i)
		}
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("reconcile: timeout must be positive")
	}
	tolerance := cfg.Tolerance
	if tolerance.IsZero() {
		tolerance = DefaultTolerance
	}
	if tolerance.Sign() < 0 || tolerance.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("reconcile: tolerance %s outside (0, 1]", tolerance)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		address:       cfg.Address,
		observers:     append([]Observer(nil), cfg.Observers...),
		fallback:      cfg.Fallback,
		fallbackSince: cfg.FallbackSince,
		expected:      cfg.Expected,
		minDelta:      MinDelta(cfg.Expected, tolerance),
		interval:      interval,
		timeout:       cfg.Timeout,
		now:           nowFn,
		sleep:         sleep,
		logger:        logger,
		metrics:       cfg.Metrics,
	}, nil
}

// MinDelta returns the smallest delta that counts as a credit.
func (r *Reconciler) MinDelta() decimal.Decimal { return r.minDelta }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run is a reconciliation whose baseline has been captured.
type Run struct {
	r         *Reconciler
	baseline  []Snapshot
	startedAt time.Time
}

// Begin captures the baseline of every observer. Call it before the transfer
// is submitted so a fast credit is never folded into the baseline. An
// expected amount at or below zero fails with ErrAmountTooSmall without
// touching any ledger.
func (r *Reconciler) Begin(ctx context.Context) (*Run, error) {
	if r.expected.Sign() <= 0 {
		r.observeOutcome(AmountTooSmall, 0)
		return nil, fmt.Errorf("%w: expected credit %s is not positive", bridgeerr.ErrAmountTooSmall, r.expected)
	}
	baseline := make([]Snapshot, 0, len(r.observers))
	for _, obs := range r.observers {
		value, err := obs.Observe(ctx)
		r.observePoll(obs.Ledger(), err)
		if err != nil {
			return nil, fmt.Errorf("reconcile: baseline %s: %w", obs.Ledger(), err)
		}
		baseline = append(baseline, Snapshot{
			Ledger:     obs.Ledger(),
			Address:    r.address,
			ObservedAt: r.now(),
			Amount:     value,
		})
	}
	run := &Run{r: r, baseline: baseline, startedAt: r.now()}
	for _, snap := range baseline {
		r.logger.Info("reconcile: baseline",
			slog.String("ledger", string(snap.Ledger)),
			slog.String("address", snap.Address),
			slog.String("amount", snap.Amount.String()))
	}
	return run, nil
}

// Baseline returns the snapshots captured by Begin.
func (run *Run) Baseline() []Snapshot {
	return append([]Snapshot(nil), run.baseline...)
}

// StartedAt returns the instant the timeout budget started.
func (run *Run) StartedAt() time.Time { return run.startedAt }

// Restart starts the timeout budget over from now. The baseline is kept.
func (run *Run) Restart() {
	run.startedAt = run.r.now()
}

// Wait polls until a credit is observed or the budget is spent. A TimedOut
// outcome is returned together with an error wrapping ErrTimedOut. Sample
// failures are logged and retried on the next tick.
func (run *Run) Wait(ctx context.Context) (Outcome, error) {
	r := run.r
	ctx, span := otel.Tracer("hlbridge/reconcile").Start(ctx, "reconcile.Wait")
	defer span.End()
	span.SetAttributes(
		attribute.String("address", r.address),
		attribute.String("expected", r.expected.String()),
		attribute.String("min_delta", r.minDelta.String()),
	)

	polls := 0
	for r.now().Sub(run.startedAt) < r.timeout {
		polls++
		for i, obs := range r.observers {
			value, err := obs.Observe(ctx)
			r.observePoll(obs.Ledger(), err)
			if err != nil {
				if ctx.Err() != nil {
					return run.abort(span, polls, ctx.Err())
				}
				r.logger.Warn("reconcile: sample failed",
					slog.String("ledger", string(obs.Ledger())),
					slog.Int("poll", polls),
					slog.Any("error", err))
				continue
			}
			delta := value.Sub(run.baseline[i].Amount)
			r.logger.Info("reconcile: sample",
				slog.String("ledger", string(obs.Ledger())),
				slog.Int("poll", polls),
				slog.String("amount", value.String()),
				slog.String("delta", delta.String()))
			if delta.GreaterThanOrEqual(r.minDelta) {
				return run.finish(span, Outcome{
					Kind:   Credited,
					Delta:  delta,
					Ledger: obs.Ledger(),
					Polls:  polls,
				}), nil
			}
		}
		if err := r.sleep(ctx, r.interval); err != nil {
			return run.abort(span, polls, err)
		}
	}

	if r.fallback != nil {
		credited, err := r.fallback.SumCredits(ctx, r.fallbackSince)
		if err != nil {
			r.logger.Warn("reconcile: ledger history failed", slog.Any("error", err))
		} else {
			r.logger.Info("reconcile: ledger history",
				slog.String("since", r.fallbackSince.UTC().Format(time.RFC3339)),
				slog.String("credited", credited.String()))
			if credited.GreaterThanOrEqual(r.minDelta) {
				return run.finish(span, Outcome{Kind: LedgerConfirmed, Delta: credited, Polls: polls}), nil
			}
		}
	}

	out := run.finish(span, Outcome{Kind: TimedOut, Polls: polls})
	span.SetStatus(codes.Error, "timed out")
	return out, fmt.Errorf("%w: no credit of at least %s after %s (%d polls)", bridgeerr.ErrTimedOut, r.minDelta, out.Elapsed.Round(time.Second), polls)
}

func (run *Run) finish(span trace.Span, out Outcome) Outcome {
	out.Elapsed = run.r.now().Sub(run.startedAt)
	span.SetAttributes(attribute.String("outcome", out.Kind.String()), attribute.Int("polls", out.Polls))
	run.r.observeOutcome(out.Kind, out.Elapsed)
	run.r.logger.Info("reconcile: finished",
		slog.String("outcome", out.Kind.String()),
		slog.String("delta", out.Delta.String()),
		slog.Int("polls", out.Polls),
		slog.Duration("elapsed", out.Elapsed))
	return out
}

func (run *Run) abort(span trace.Span, polls int, err error) (Outcome, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return Outcome{Polls: polls, Elapsed: run.r.now().Sub(run.startedAt)}, fmt.Errorf("reconcile: interrupted after %d polls: %w", polls, err)
}

func (r *Reconciler) observePoll(ledger LedgerKind, err error) {
	if r.metrics != nil {
		r.metrics.ObservePoll(string(ledger), err != nil)
	}
}

func (r *Reconciler) observeOutcome(kind OutcomeKind, elapsed time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveOutcome(kind.String(), elapsed)
	}
}
