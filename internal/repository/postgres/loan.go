package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"liquidator/internal/domain/loan"
	"liquidator/internal/metrics"
	"liquidator/pkg/errors"
)

// Compile-time check
var _ loan.Repository = (*LoanRepository)(nil)

const loanColumns = `
	id, status, starts_at, ends_at,
	collateral_token, collateral_amount,
	asset_token, principal_amount, repayment_amount,
	COALESCE(borrower, '') AS borrower, COALESCE(lender, '') AS lender`

// loanRow is the loans table layout. Timestamps are unix seconds; the term is
// stored as its end rather than its length.
type loanRow struct {
	ID               int64               `db:"id"`
	Status           string              `db:"status"`
	StartsAt         int64               `db:"starts_at"`
	EndsAt           int64               `db:"ends_at"`
	CollateralToken  string              `db:"collateral_token"`
	CollateralAmount decimal.Decimal     `db:"collateral_amount"`
	AssetToken       string              `db:"asset_token"`
	PrincipalAmount  decimal.Decimal     `db:"principal_amount"`
	RepaymentAmount  decimal.NullDecimal `db:"repayment_amount"`
	Borrower         string              `db:"borrower"`
	Lender           string              `db:"lender"`
}

func (r loanRow) toDomain() (*loan.Loan, error) {
	status, err := loan.ParseStatus(r.Status)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "loan %d: %v", r.ID, err)
	}
	if r.EndsAt < r.StartsAt {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "loan %d: ends_at %d before starts_at %d", r.ID, r.EndsAt, r.StartsAt)
	}

	l := &loan.Loan{
		ID:               r.ID,
		Status:           status,
		StartTime:        time.Unix(r.StartsAt, 0).UTC(),
		Duration:         time.Duration(r.EndsAt-r.StartsAt) * time.Second,
		CollateralAsset:  r.CollateralToken,
		CollateralAmount: r.CollateralAmount,
		DebtAsset:        r.AssetToken,
		PrincipalAmount:  r.PrincipalAmount,
		Borrower:         r.Borrower,
		Lender:           r.Lender,
	}
	if r.RepaymentAmount.Valid {
		l.RepaymentAmount = r.RepaymentAmount.Decimal
	}
	return l, nil
}

// LoanRepository reads the off-chain loan store
type LoanRepository struct {
	db DBTX
}

// NewLoanRepository accepts *sqlx.DB or *sqlx.Tx
func NewLoanRepository(db DBTX) *LoanRepository {
	return &LoanRepository{db: db}
}

// ListActive returns every loan in the active state. Rows that cannot be
// mapped fail the whole call so a scan never silently skips a loan.
func (r *LoanRepository) ListActive(ctx context.Context) (loans []*loan.Loan, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "loans_list_active", time.Since(start), err) }()

	var rows []loanRow
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, loan.StatusActive.String()); err != nil {
		return nil, errors.Wrap(err, "list active loans")
	}

	loans = make([]*loan.Loan, 0, len(rows))
	for _, row := range rows {
		l, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, nil
}

// GetByID returns errors.ErrNotFound when no row matches
func (r *LoanRepository) GetByID(ctx context.Context, id int64) (l *loan.Loan, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, errors.ErrNotFound) {
			metrics.RecordDBQuery("postgres", "loans_get_by_id", time.Since(start), nil)
			return
		}
		metrics.RecordDBQuery("postgres", "loans_get_by_id", time.Since(start), err)
	}()

	var row loanRow
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "loan %d", id)
		}
		return nil, errors.Wrapf(err, "get loan %d", id)
	}
	return row.toDomain()
}

// CountByStatus returns the number of loans per status, for gauges
func (r *LoanRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM loans GROUP BY status`); err != nil {
		return nil, errors.Wrap(err, "count loans by status")
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
