package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidator/internal/domain/loan"
	"liquidator/internal/testsupport"
	"liquidator/pkg/errors"
)

func TestLoanRow_ToDomain(t *testing.T) {
	row := loanRow{
		ID:               7,
		Status:           "active",
		StartsAt:         1_700_000_000,
		EndsAt:           1_700_086_400,
		CollateralToken:  "ETH",
		CollateralAmount: decimal.RequireFromString("1.5"),
		AssetToken:       "USDC",
		PrincipalAmount:  decimal.NewFromInt(2000),
		RepaymentAmount:  decimal.NewNullDecimal(decimal.NewFromInt(2100)),
		Borrower:         "0xb0",
	}

	l, err := row.toDomain()
	require.NoError(t, err)

	assert.Equal(t, int64(7), l.ID)
	assert.Equal(t, loan.StatusActive, l.Status)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), l.StartTime)
	assert.Equal(t, 24*time.Hour, l.Duration)
	assert.True(t, l.DebtAmount().Equal(decimal.NewFromInt(2100)))
	assert.Equal(t, "0xb0", l.Borrower)
	assert.Empty(t, l.Lender)
}

func TestLoanRow_ToDomain_NullRepayment(t *testing.T) {
	row := loanRow{ID: 1, Status: "active", StartsAt: 10, EndsAt: 20, PrincipalAmount: decimal.NewFromInt(50)}

	l, err := row.toDomain()
	require.NoError(t, err)
	assert.True(t, l.RepaymentAmount.IsZero())
	assert.True(t, l.DebtAmount().Equal(decimal.NewFromInt(50)), "falls back to principal")
}

func TestLoanRow_ToDomain_Invalid(t *testing.T) {
	_, err := loanRow{ID: 2, Status: "defaulted"}.toDomain()
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = loanRow{ID: 3, Status: "active", StartsAt: 100, EndsAt: 99}.toDomain()
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestLoanRepository_Integration(t *testing.T) {
	active := testsupport.NewLoanRow()
	legacy := testsupport.NewLoanRow()
	legacy.RepaymentAmount = decimal.NullDecimal{}
	legacy.Borrower = nil
	repaid := testsupport.NewLoanRow()
	repaid.Status = "repaid"
	tx := testsupport.NewLoanStore(t, active, legacy, repaid)

	repo := NewLoanRepository(tx)
	ctx := context.Background()

	t.Run("ListActive", func(t *testing.T) {
		loans, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, loans, 2)

		assert.Equal(t, active.ID, loans[0].ID, "ordered by id")
		assert.Equal(t, legacy.ID, loans[1].ID)
		assert.True(t, loans[0].DebtAmount().Equal(decimal.NewFromInt(1050)))
		assert.True(t, loans[1].DebtAmount().Equal(decimal.NewFromInt(1000)))
		assert.Empty(t, loans[1].Borrower)
		assert.Equal(t, 24*time.Hour, loans[0].Duration)
	})

	t.Run("GetByID", func(t *testing.T) {
		l, err := repo.GetByID(ctx, repaid.ID)
		require.NoError(t, err)
		assert.Equal(t, loan.StatusRepaid, l.Status)

		_, err = repo.GetByID(ctx, -1)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("CountByStatus", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"active": 2, "repaid": 1}, counts)
	})

	t.Run("BadRowFailsList", func(t *testing.T) {
		broken := testsupport.NewLoanRow()
		broken.EndsAt = broken.StartsAt - 1
		testsupport.InsertLoans(t, tx, broken)

		_, err := repo.ListActive(ctx)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}
