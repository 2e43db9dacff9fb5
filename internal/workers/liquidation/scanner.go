package liquidation

import (
	"context"
	"sort"
	"sync"
	"time"

	"liquidator/internal/domain/liquidation"
	"liquidator/internal/domain/loan"
	"liquidator/internal/domain/notification"
	"liquidator/internal/metrics"
	"liquidator/internal/services/healthcheck"
	"liquidator/internal/workers"
	"liquidator/pkg/errors"
)

const WorkerName = "liquidation_scanner"

// LoanSource lists the loans a scan looks at
type LoanSource interface {
	ListActive(ctx context.Context) ([]*loan.Loan, error)
}

// HealthEvaluator is satisfied by *healthcheck.Evaluator
type HealthEvaluator interface {
	EvaluateAll(ctx context.Context, loans []*loan.Loan) (map[int64]*healthcheck.Result, map[int64]error)
}

// Liquidator is satisfied by *liquidation.Executor
type Liquidator interface {
	Liquidate(ctx context.Context, loanID int64) *liquidation.Result
}

// Notifier is satisfied by *notify.Dispatcher. It never fails.
type Notifier interface {
	Notify(ctx context.Context, kind notification.Kind, severity notification.Severity, title string, fields map[string]interface{})
}

type Config struct {
	Interval                  time.Duration
	MaxConcurrentLiquidations int
	AlertOnRaceConditions     bool
	Enabled                   bool
}

// Summary describes one finished scan
type Summary struct {
	StartedAt        time.Time
	Duration         time.Duration
	Active           int
	Liquidatable     int
	EvaluationErrors int
	Succeeded        int
	Failed           int
	Skipped          int
}

// Scanner runs the fetch, evaluate, liquidate cycle
type Scanner struct {
	*workers.BaseWorker
	cfg       Config
	loans     LoanSource
	evaluator HealthEvaluator
	executor  Liquidator
	notifier  Notifier
	audit     liquidation.Repository // nil disables the audit log
	now       func() time.Time

	mu          sync.RWMutex
	lastSummary *Summary
}

func NewScanner(
	cfg Config,
	loans LoanSource,
	evaluator HealthEvaluator,
	executor Liquidator,
	notifier Notifier,
	audit liquidation.Repository,
) *Scanner {
	if cfg.MaxConcurrentLiquidations <= 0 {
		cfg.MaxConcurrentLiquidations = 1
	}
	return &Scanner{
		BaseWorker: workers.NewBaseWorker(WorkerName, cfg.Interval, cfg.Enabled),
		cfg:        cfg,
		loans:      loans,
		evaluator:  evaluator,
		executor:   executor,
		notifier:   notifier,
		audit:      audit,
		now:        time.Now,
	}
}

// LastSummary returns the most recent completed scan, nil before the first
func (s *Scanner) LastSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSummary == nil {
		return nil
	}
	cp := *s.lastSummary
	return &cp
}

// Run executes one scan cycle. Only a failure to list loans aborts it.
func (s *Scanner) Run(ctx context.Context) error {
	summary := Summary{StartedAt: s.now()}
	s.Log().Info("Starting scan cycle")

	loans, err := s.loans.ListActive(ctx)
	if err != nil {
		s.Log().Errorw("Failed to fetch active loans", "error", err)
		metrics.RecordScan(0, 0, err)
		s.notifier.Notify(ctx, notification.KindScanFailed, notification.SeverityCritical,
			"Scan cycle failed", map[string]interface{}{"error": err.Error()})
		return errors.Wrap(err, "fetch active loans")
	}
	summary.Active = len(loans)

	if len(loans) == 0 {
		s.Log().Info("No active loans found")
		s.finish(ctx, &summary)
		return nil
	}

	results, failures := s.evaluator.EvaluateAll(ctx, loans)
	summary.EvaluationErrors = len(failures)
	for id, evalErr := range failures {
		s.Log().Warnw("Loan evaluation failed", "loan_id", id, "error", evalErr)
	}

	flagged := make([]*healthcheck.Result, 0)
	for _, res := range results {
		if res.Liquidate {
			flagged = append(flagged, res)
		}
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i].LoanID < flagged[j].LoanID })
	summary.Liquidatable = len(flagged)

	s.Log().Infow("Scan evaluation complete",
		"active", summary.Active,
		"liquidatable", summary.Liquidatable,
		"evaluation_errors", summary.EvaluationErrors,
	)
	s.notifier.Notify(ctx, notification.KindScanCompleted, notification.SeverityInfo,
		"Liquidation scan complete", summaryFields(&summary))

	for _, res := range s.liquidateAll(ctx, flagged) {
		switch {
		case res.Succeeded():
			summary.Succeeded++
		case res.Benign():
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	s.finish(ctx, &summary)
	return nil
}

func (s *Scanner) finish(ctx context.Context, summary *Summary) {
	summary.Duration = s.now().Sub(summary.StartedAt)
	metrics.RecordScan(summary.Active, summary.Liquidatable, nil)

	if summary.Active == 0 {
		s.notifier.Notify(ctx, notification.KindScanCompleted, notification.SeverityInfo,
			"Liquidation scan complete", summaryFields(summary))
	}

	s.Log().Infow("Scan cycle complete",
		"active", summary.Active,
		"liquidatable", summary.Liquidatable,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.Duration,
	)

	s.mu.Lock()
	s.lastSummary = summary
	s.mu.Unlock()
}

// liquidateAll runs flagged loans through the executor with bounded
// concurrency. Each outcome is reported as soon as it is known.
func (s *Scanner) liquidateAll(ctx context.Context, flagged []*healthcheck.Result) map[int64]*liquidation.Result {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		outcomes  = make(map[int64]*liquidation.Result, len(flagged))
		semaphore = make(chan struct{}, s.cfg.MaxConcurrentLiquidations)
	)

	for _, eval := range flagged {
		wg.Add(1)
		go func() {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			s.Log().Infow("Executing liquidation",
				"loan_id", eval.LoanID,
				"trigger", eval.Trigger,
				"health_factor", eval.HealthFactor,
			)
			res := s.executor.Liquidate(ctx, eval.LoanID)
			s.report(ctx, eval, res)

			mu.Lock()
			outcomes[eval.LoanID] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	return outcomes
}

// report notifies and audits one outcome
func (s *Scanner) report(ctx context.Context, eval *healthcheck.Result, res *liquidation.Result) {
	log := s.Log().With("loan_id", res.LoanID, "outcome", res.Outcome)
	fields := map[string]interface{}{
		"loan_id":  res.LoanID,
		"trigger":  string(eval.Trigger),
		"attempts": res.Attempts,
	}

	switch {
	case res.Succeeded():
		fields["tx"] = res.TxRef
		if eval.HealthFactor > 0 {
			fields["health_factor"] = eval.HealthFactor
			fields["collateral_usd"] = eval.CollateralValueUSD
			fields["debt_usd"] = eval.DebtValueUSD
		}
		title := "Liquidation executed"
		if res.DryRun {
			title = "Liquidation simulated (dry run)"
			fields["dry_run"] = true
		}
		log.Infow("Liquidation successful", "tx", res.TxRef, "attempts", res.Attempts)
		s.notifier.Notify(ctx, notification.KindLiquidationSucceeded, notification.SeverityInfo, title, fields)

	case res.Benign():
		log.Warnw("Liquidation skipped", "reason", res.Reason)
		if s.cfg.AlertOnRaceConditions {
			fields["outcome"] = res.Outcome.String()
			fields["reason"] = res.Reason
			s.notifier.Notify(ctx, notification.KindLiquidationSkipped, notification.SeverityWarning,
				"Liquidation skipped", fields)
		}

	default:
		fields["reason"] = res.Reason
		log.Errorw("Liquidation failed", "reason", res.Reason, "attempts", res.Attempts)
		s.notifier.Notify(ctx, notification.KindLiquidationFailed, notification.SeverityCritical,
			"Liquidation failed", fields)
	}

	s.recordAudit(ctx, eval, res)
}

func (s *Scanner) recordAudit(ctx context.Context, eval *healthcheck.Result, res *liquidation.Result) {
	if s.audit == nil {
		return
	}

	rec := &liquidation.Record{
		LoanID:        uint64(res.LoanID),
		Timestamp:     s.now().UTC(),
		Outcome:       res.Outcome.String(),
		Trigger:       string(eval.Trigger),
		HealthFactor:  eval.HealthFactor,
		CollateralUSD: eval.CollateralValueUSD,
		DebtUSD:       eval.DebtValueUSD,
		TxRef:         res.TxRef,
		Reason:        res.Reason,
		Attempts:      uint8(min(res.Attempts, 255)),
		DryRun:        res.DryRun,
	}
	if err := s.audit.Insert(ctx, rec); err != nil {
		s.Log().Warnw("Failed to write liquidation audit record", "loan_id", res.LoanID, "error", err)
	}
}

func summaryFields(s *Summary) map[string]interface{} {
	fields := map[string]interface{}{
		"active":       s.Active,
		"liquidatable": s.Liquidatable,
	}
	if s.EvaluationErrors > 0 {
		fields["errors"] = s.EvaluationErrors
	}
	return fields
}
