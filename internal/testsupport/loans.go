package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// createLoansTable shadows any real loans table for the life of the transaction
const createLoansTable = `
	CREATE TEMP TABLE loans (
		id                BIGINT PRIMARY KEY,
		status            TEXT NOT NULL,
		starts_at         BIGINT NOT NULL,
		ends_at           BIGINT NOT NULL,
		collateral_token  TEXT NOT NULL,
		collateral_amount NUMERIC NOT NULL,
		asset_token       TEXT NOT NULL,
		principal_amount  NUMERIC NOT NULL,
		repayment_amount  NUMERIC,
		borrower          TEXT,
		lender            TEXT
	) ON COMMIT DROP`

// LoanRow is a loans table fixture
type LoanRow struct {
	ID               int64               `db:"id"`
	Status           string              `db:"status"`
	StartsAt         int64               `db:"starts_at"`
	EndsAt           int64               `db:"ends_at"`
	CollateralToken  string              `db:"collateral_token"`
	CollateralAmount decimal.Decimal     `db:"collateral_amount"`
	AssetToken       string              `db:"asset_token"`
	PrincipalAmount  decimal.Decimal     `db:"principal_amount"`
	RepaymentAmount  decimal.NullDecimal `db:"repayment_amount"`
	Borrower         *string             `db:"borrower"`
	Lender           *string             `db:"lender"`
}

// NewLoanRow returns an active loan that started an hour ago with a day-long term
func NewLoanRow() LoanRow {
	start := time.Now().Add(-time.Hour).Unix()
	borrower := UniqueAddress()
	lender := UniqueAddress()
	return LoanRow{
		ID:               int64(NextSequence()),
		Status:           "active",
		StartsAt:         start,
		EndsAt:           start + int64((24 * time.Hour).Seconds()),
		CollateralToken:  "ETH",
		CollateralAmount: decimal.NewFromInt(1),
		AssetToken:       "USDC",
		PrincipalAmount:  decimal.NewFromInt(1000),
		RepaymentAmount:  decimal.NewNullDecimal(decimal.NewFromInt(1050)),
		Borrower:         &borrower,
		Lender:           &lender,
	}
}

// CreateLoansTable creates the temporary loans table inside tx
func CreateLoansTable(t *testing.T, tx *sqlx.Tx) {
	t.Helper()
	if _, err := tx.ExecContext(context.Background(), createLoansTable); err != nil {
		t.Fatalf("failed to create loans table: %v", err)
	}
}

// InsertLoans writes fixtures into the loans table
func InsertLoans(t *testing.T, tx *sqlx.Tx, rows ...LoanRow) {
	t.Helper()

	const query = `
		INSERT INTO loans (
			id, status, starts_at, ends_at, collateral_token, collateral_amount,
			asset_token, principal_amount, repayment_amount, borrower, lender
		) VALUES (
			:id, :status, :starts_at, :ends_at, :collateral_token, :collateral_amount,
			:asset_token, :principal_amount, :repayment_amount, :borrower, :lender
		)`

	for _, row := range rows {
		if _, err := tx.NamedExecContext(context.Background(), query, row); err != nil {
			t.Fatalf("failed to insert loan %d: %v", row.ID, err)
		}
	}
}
