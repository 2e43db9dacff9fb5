package liquidation

import "time"

// Outcome classifies a liquidation attempt chain
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeFailed        Outcome = "failed"
	OutcomeNotActive     Outcome = "not_active"     // pre-flight saw a non-active loan
	OutcomeRaceCondition Outcome = "race_condition" // contract rejected, someone else got there first
	OutcomeInProgress    Outcome = "in_progress"    // another instance holds the loan lock
)

func (o Outcome) String() string { return string(o) }

// Result is what the executor reports back for one loan
type Result struct {
	LoanID   int64
	Outcome  Outcome
	TxRef    string
	Reason   string
	Attempts int
	DryRun   bool
	Err      error
}

// Succeeded reports whether the loan was liquidated (or would have been, in dry run)
func (r *Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Benign outcomes are expected under competition and are not operator errors
func (r *Result) Benign() bool {
	switch r.Outcome {
	case OutcomeNotActive, OutcomeRaceCondition, OutcomeInProgress:
		return true
	}
	return false
}

// Record is one row of the liquidation audit log
type Record struct {
	LoanID        uint64    `ch:"loan_id"`
	Timestamp     time.Time `ch:"timestamp"`
	Outcome       string    `ch:"outcome"`
	Trigger       string    `ch:"trigger"` // time_based, health_factor
	HealthFactor  float64   `ch:"health_factor"`
	CollateralUSD float64   `ch:"collateral_usd"`
	DebtUSD       float64   `ch:"debt_usd"`
	TxRef         string    `ch:"tx_ref"`
	Reason        string    `ch:"reason"`
	Attempts      uint8     `ch:"attempts"`
	DryRun        bool      `ch:"dry_run"`
}
