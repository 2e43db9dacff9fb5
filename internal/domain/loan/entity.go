package loan

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Loan is a read-only snapshot of a collateralized loan as stored off-chain
type Loan struct {
	ID     int64
	Status Status

	StartTime time.Time
	Duration  time.Duration

	CollateralAsset  string
	CollateralAmount decimal.Decimal

	DebtAsset       string
	PrincipalAmount decimal.Decimal
	RepaymentAmount decimal.Decimal // principal plus interest

	Borrower string
	Lender   string
}

// EndsAt is the moment the loan term runs out
func (l *Loan) EndsAt() time.Time {
	return l.StartTime.Add(l.Duration)
}

// IsExpired reports whether the term has elapsed at now (inclusive)
func (l *Loan) IsExpired(now time.Time) bool {
	return !now.Before(l.EndsAt())
}

// TimeRemaining returns the time left on the term, never negative
func (l *Loan) TimeRemaining(now time.Time) time.Duration {
	if d := l.EndsAt().Sub(now); d > 0 {
		return d
	}
	return 0
}

// DebtAmount is what the borrower owes. Rows written before interest was
// tracked carry no repayment amount; those fall back to the principal.
func (l *Loan) DebtAmount() decimal.Decimal {
	if l.RepaymentAmount.IsPositive() {
		return l.RepaymentAmount
	}
	return l.PrincipalAmount
}

// Status mirrors the contract's loan status enum
type Status uint8

const (
	StatusRequested Status = iota
	StatusCancelled
	StatusActive
	StatusRepaid
	StatusLiquidated
	StatusClaimed
)

var statusNames = [...]string{"requested", "cancelled", "active", "repaid", "liquidated", "claimed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Valid reports whether s is one of the known states
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// ParseStatus converts the store's textual status
func ParseStatus(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown loan status %q", v)
}

// StatusFromChain converts the numeric status returned by get_loan_status
func StatusFromChain(v uint8) Status {
	return Status(v)
}
