package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"liquidator/internal/domain/loan"
	"liquidator/internal/metrics"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// Trigger explains why a loan should be liquidated
type Trigger string

const (
	TriggerNone         Trigger = ""
	TriggerTimeBased    Trigger = "time_based"
	TriggerHealthFactor Trigger = "health_factor"
)

// PriceResolver resolves asset identifiers to USD prices, keyed by the input identifier
type PriceResolver interface {
	ResolveMany(ctx context.Context, assetIDs []string) (map[string]float64, error)
}

// Result is the verdict for one loan at one instant
type Result struct {
	LoanID             int64
	Liquidate          bool
	Trigger            Trigger
	HealthFactor       float64 // zero when the loan expired before prices were needed
	CollateralValueUSD float64
	DebtValueUSD       float64
	TimeExpired        bool
}

type Config struct {
	Threshold      float64 // liquidate when HF < Threshold
	MaxConcurrency int
}

// Evaluator decides whether loans are liquidatable
type Evaluator struct {
	prices         PriceResolver
	threshold      decimal.Decimal
	maxConcurrency int
	now            func() time.Time
	log            *logger.Logger
}

type Option func(*Evaluator)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(cfg Config, prices PriceResolver, log *logger.Logger, opts ...Option) *Evaluator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1.0
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if log == nil {
		log = logger.Get()
	}
	e := &Evaluator{
		prices:         prices,
		threshold:      decimal.NewFromFloat(cfg.Threshold),
		maxConcurrency: cfg.MaxConcurrency,
		now:            time.Now,
		log:            log.Component("health_evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks term expiry first, then the health factor:
//
//	HF = collateral_amount * collateral_price / (debt_amount * debt_price)
//
// where debt is the repayment amount. An expired loan never triggers a price lookup.
func (e *Evaluator) Evaluate(ctx context.Context, l *loan.Loan) (*Result, error) {
	if l == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "nil loan")
	}

	if now := e.now(); l.IsExpired(now) {
		e.log.Infow("Loan term expired",
			"loan_id", l.ID,
			"ends_at", l.EndsAt().Unix(),
			"now", now.Unix(),
		)
		metrics.RecordEvaluation(string(TriggerTimeBased), 0)
		return &Result{
			LoanID:      l.ID,
			Liquidate:   true,
			Trigger:     TriggerTimeBased,
			TimeExpired: true,
		}, nil
	}

	collateralPrice, debtPrice, err := e.resolvePair(ctx, l.CollateralAsset, l.DebtAsset)
	if err != nil {
		metrics.RecordEvaluation("error", 0)
		return nil, errors.Wrapf(err, "price loan %d", l.ID)
	}

	collateralUSD := l.CollateralAmount.Mul(decimal.NewFromFloat(collateralPrice))
	debtUSD := l.DebtAmount().Mul(decimal.NewFromFloat(debtPrice))
	if !debtUSD.IsPositive() {
		metrics.RecordEvaluation("error", 0)
		return nil, errors.Wrapf(errors.ErrInvalidInput, "loan %d has no debt value (debt amount %s)", l.ID, l.DebtAmount())
	}

	hf := collateralUSD.Div(debtUSD)
	res := &Result{
		LoanID:             l.ID,
		HealthFactor:       hf.InexactFloat64(),
		CollateralValueUSD: collateralUSD.InexactFloat64(),
		DebtValueUSD:       debtUSD.InexactFloat64(),
	}

	if hf.LessThan(e.threshold) {
		res.Liquidate = true
		res.Trigger = TriggerHealthFactor
		e.log.Infow("Loan below health factor threshold",
			"loan_id", l.ID,
			"health_factor", res.HealthFactor,
			"threshold", e.threshold.InexactFloat64(),
		)
		metrics.RecordEvaluation(string(TriggerHealthFactor), res.HealthFactor)
		return res, nil
	}

	e.log.Debugw("Loan healthy", "loan_id", l.ID, "health_factor", res.HealthFactor)
	metrics.RecordEvaluation("hold", res.HealthFactor)
	return res, nil
}

// EvaluateAll evaluates loans concurrently. Failures are isolated per loan and
// returned in the second map; they never affect other loans.
func (e *Evaluator) EvaluateAll(ctx context.Context, loans []*loan.Loan) (map[int64]*Result, map[int64]error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		results   = make(map[int64]*Result, len(loans))
		failures  = make(map[int64]error)
		semaphore = make(chan struct{}, e.maxConcurrency)
	)

	for _, l := range loans {
		wg.Add(1)
		go func() {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			res, err := e.Evaluate(ctx, l)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[l.ID] = err
				return
			}
			results[l.ID] = res
		}()
	}
	wg.Wait()

	return results, failures
}

func (e *Evaluator) resolvePair(ctx context.Context, collateralAsset, debtAsset string) (float64, float64, error) {
	prices, err := e.prices.ResolveMany(ctx, []string{collateralAsset, debtAsset})
	if err != nil {
		return 0, 0, err
	}
	return prices[collateralAsset], prices[debtAsset], nil
}
