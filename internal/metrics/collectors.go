package metrics

import (
	"context"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"liquidator/pkg/logger"
)

// BalanceReader returns the liquidator wallet balance in wei
type BalanceReader interface {
	Balance(ctx context.Context) (*big.Int, error)
}

// LoanCounter returns loan counts keyed by status
type LoanCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// StateCollector exports gauges that are read on scrape rather than tracked:
// the liquidator wallet balance and loan counts by status.
type StateCollector struct {
	log      *logger.Logger
	loans    LoanCounter
	wallet   BalanceReader

	walletBalance *prometheus.Desc
	loansByStatus *prometheus.Desc
}

func NewStateCollector(log *logger.Logger, loans LoanCounter, wallet BalanceReader) *StateCollector {
	return &StateCollector{
		log:      log,
		loans:    loans,
		wallet:   wallet,

		walletBalance: prometheus.NewDesc(
			"liquidator_wallet_balance_eth",
			"Native balance of the liquidator wallet",
			nil, nil,
		),
		loansByStatus: prometheus.NewDesc(
			"liquidator_loans",
			"Loans in the off-chain store by status",
			[]string{"status"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.walletBalance
	ch <- c.loansByStatus
}

// Collect implements prometheus.Collector
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectWalletBalance(ctx, ch)
	c.collectLoanStats(ctx, ch)
}

func (c *StateCollector) collectWalletBalance(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.wallet == nil {
		return
	}
	wei, err := c.wallet.Balance(ctx)
	if err != nil {
		c.log.Warnw("Failed to collect wallet balance", "error", err)
		return
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()

	ch <- prometheus.MustNewConstMetric(c.walletBalance, prometheus.GaugeValue, eth)
}

func (c *StateCollector) collectLoanStats(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.loans == nil {
		return
	}

	counts, err := c.loans.CountByStatus(ctx)
	if err != nil {
		c.log.Warnw("Failed to collect loan stats", "error", err)
		return
	}

	for status, count := range counts {
		ch <- prometheus.MustNewConstMetric(c.loansByStatus, prometheus.GaugeValue, float64(count), status)
	}
}

// RegisterStateCollector registers the collector with the default registry
func RegisterStateCollector(collector *StateCollector) {
	prometheus.MustRegister(collector)
}
