package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanFixturesAreRolledBack(t *testing.T) {
	helper := NewTestPostgres(t)
	ctx := context.Background()
	tx := helper.Tx()

	CreateLoansTable(t, tx)
	first, second := NewLoanRow(), NewLoanRow()
	second.Status = "repaid"
	second.Borrower = nil
	InsertLoans(t, tx, first, second)

	var active int
	require.NoError(t, tx.GetContext(ctx, &active, "SELECT COUNT(*) FROM loans WHERE status = 'active'"))
	assert.Equal(t, 1, active)

	var nullBorrowers int
	require.NoError(t, tx.GetContext(ctx, &nullBorrowers, "SELECT COUNT(*) FROM loans WHERE borrower IS NULL"))
	assert.Equal(t, 1, nullBorrowers)

	helper.Rollback()

	var found bool
	require.NoError(t, helper.DB().GetContext(ctx, &found,
		"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname LIKE 'pg_temp%' AND tablename = 'loans')"))
	assert.False(t, found, "temp loans table dropped with the transaction")
}
