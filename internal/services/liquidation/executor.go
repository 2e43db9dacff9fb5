package liquidation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"liquidator/internal/adapters/chain"
	"liquidator/internal/adapters/retry"
	"liquidator/internal/domain/liquidation"
	"liquidator/internal/domain/loan"
	"liquidator/internal/metrics"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// Chain is the contract capability: read-only views and mined submissions
type Chain interface {
	ReadView(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)
	Submit(ctx context.Context, method string, args ...interface{}) (string, error)
}

// Locker takes a cross-instance lock. It returns errors.ErrLockNotAcquired
// when someone else holds it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Revert messages meaning the loan is no longer liquidatable, usually because
// another liquidator or the borrower acted first
var raceMarkers = []string{"cannot liquidate", "cannotliquidate", "einvalidstatus"}

type Config struct {
	DryRun              bool
	MaxRetries          int
	PreFlightValidation bool
	LockTTL             time.Duration
	AttemptTimeout      time.Duration // upper bound of one submission, receipt wait included
}

// Executor submits liquidations with pre-flight validation and retry
type Executor struct {
	cfg     Config
	chain   Chain
	locker  Locker
	retrier *retry.Retrier
	lockTTL time.Duration
	now     func() time.Time
	log     *logger.Logger
}

type Option func(*executorOptions)

type executorOptions struct {
	sleep retry.SleepFunc
	now   func() time.Time
}

// WithSleep replaces the real backoff sleep, for tests
func WithSleep(sleep retry.SleepFunc) Option {
	return func(o *executorOptions) { o.sleep = sleep }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *executorOptions) { o.now = now }
}

// NewExecutor builds an executor; locker may be nil
func NewExecutor(cfg Config, chain Chain, locker Locker, log *logger.Logger, opts ...Option) *Executor {
	o := executorOptions{sleep: retry.Sleep, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if log == nil {
		log = logger.Get()
	}
	e := &Executor{
		cfg:     cfg,
		chain:   chain,
		locker:  locker,
		retrier: retry.New(retry.DefaultPolicy(cfg.MaxRetries), o.sleep),
		now:     o.now,
		log:     log.Component("liquidation_executor"),
	}

	// The lock must outlive the whole retry chain
	e.lockTTL = cfg.LockTTL
	if window := e.retrier.Policy().Window(cfg.AttemptTimeout); window > e.lockTTL {
		e.log.Infow("Liquidation lock TTL raised to cover all attempts",
			"configured", cfg.LockTTL, "effective", window)
		e.lockTTL = window
	}
	return e
}

func (e *Executor) DryRun() bool { return e.cfg.DryRun }

// LockTTL is the effective per-loan lock lifetime
func (e *Executor) LockTTL() time.Duration { return e.lockTTL }

// LiquidateOnce makes a single attempt
func (e *Executor) LiquidateOnce(ctx context.Context, loanID int64) *liquidation.Result {
	log := e.log.With("loan_id", loanID)

	if e.cfg.DryRun {
		ref := fmt.Sprintf("0xDRYRUN_%d_%d", loanID, e.now().UnixMilli())
		log.Warnw("[DRY RUN] Would liquidate loan", "tx", ref)
		return &liquidation.Result{
			LoanID:  loanID,
			Outcome: liquidation.OutcomeSuccess,
			TxRef:   ref,
			DryRun:  true,
		}
	}

	if e.cfg.PreFlightValidation {
		status, err := e.loanStatus(ctx, loanID)
		switch {
		case err != nil:
			// A flaky view must not block a liquidation
			log.Warnw("Pre-flight status check failed, proceeding", "error", err)
		case status != loan.StatusActive:
			reason := fmt.Sprintf("loan not active (status=%s)", status)
			log.Infow("Skipping liquidation", "reason", reason)
			return &liquidation.Result{
				LoanID:  loanID,
				Outcome: liquidation.OutcomeNotActive,
				Reason:  reason,
			}
		}
	}

	log.Infow("Submitting liquidation")
	txRef, err := e.chain.Submit(ctx, chain.MethodLiquidateLoan, uint64(loanID))
	if err != nil {
		if IsRaceCondition(err) {
			log.Warnw("Liquidation lost the race", "error", err)
			return &liquidation.Result{
				LoanID:  loanID,
				Outcome: liquidation.OutcomeRaceCondition,
				TxRef:   txRef,
				Reason:  "loan already liquidated or status changed",
				Err:     err,
			}
		}
		log.Warnw("Liquidation attempt failed", "error", err)
		return &liquidation.Result{
			LoanID:  loanID,
			Outcome: liquidation.OutcomeFailed,
			TxRef:   txRef,
			Reason:  err.Error(),
			Err:     err,
		}
	}

	log.Infow("Liquidation confirmed", "tx", txRef)
	return &liquidation.Result{
		LoanID:  loanID,
		Outcome: liquidation.OutcomeSuccess,
		TxRef:   txRef,
	}
}

// Liquidate retries LiquidateOnce with capped exponential backoff. Success and
// benign outcomes (not active, lost race, locked elsewhere) end the loop early.
func (e *Executor) Liquidate(ctx context.Context, loanID int64) *liquidation.Result {
	res := e.liquidate(ctx, loanID)
	metrics.RecordLiquidation(res.Outcome.String(), res.Attempts, res.DryRun)
	return res
}

func (e *Executor) liquidate(ctx context.Context, loanID int64) *liquidation.Result {
	log := e.log.With("loan_id", loanID)

	if e.cfg.DryRun {
		res := e.LiquidateOnce(ctx, loanID)
		res.Attempts = 1
		return res
	}

	if e.locker != nil {
		unlock, err := e.locker.TryLock(ctx, fmt.Sprintf("liquidation:%d", loanID), e.lockTTL)
		switch {
		case errors.Is(err, errors.ErrLockNotAcquired):
			log.Infow("Liquidation already in progress elsewhere")
			return &liquidation.Result{
				LoanID:  loanID,
				Outcome: liquidation.OutcomeInProgress,
				Reason:  "liquidation lock held by another instance",
			}
		case err != nil:
			log.Warnw("Liquidation lock unavailable, proceeding without it", "error", err)
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					log.Warnw("Failed to release liquidation lock", "error", err)
				}
			}()
		}
	}

	var last *liquidation.Result
	attempts, err := e.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		log.Infow("Liquidation attempt", "attempt", attempt, "max", e.cfg.MaxRetries)

		last = e.LiquidateOnce(ctx, loanID)
		switch {
		case last.Succeeded():
			return nil
		case last.Benign():
			return retry.Permanent(errors.New(last.Reason))
		default:
			return last.Err
		}
	})

	last.Attempts = attempts
	if err == nil || last.Benign() {
		return last
	}

	log.Errorw("All liquidation attempts failed", "attempts", attempts, "error", err)
	return &liquidation.Result{
		LoanID:   loanID,
		Outcome:  liquidation.OutcomeFailed,
		TxRef:    last.TxRef,
		Reason:   capitalize(err.Error()),
		Attempts: attempts,
		Err:      err,
	}
}

// IsRaceCondition reports whether a submission error means the loan was
// already liquidated or otherwise left the active state
func IsRaceCondition(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range raceMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (e *Executor) loanStatus(ctx context.Context, loanID int64) (loan.Status, error) {
	values, err := e.chain.ReadView(ctx, chain.MethodGetLoanStatus, uint64(loanID))
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, errors.Newf("%s returned no values", chain.MethodGetLoanStatus)
	}
	switch v := values[0].(type) {
	case uint8:
		return loan.StatusFromChain(v), nil
	case uint64:
		return loan.StatusFromChain(uint8(v)), nil
	case int:
		return loan.StatusFromChain(uint8(v)), nil
	default:
		return 0, errors.Newf("%s returned %T", chain.MethodGetLoanStatus, values[0])
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
