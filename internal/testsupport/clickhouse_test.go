package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditFixture struct {
	LoanID    uint64    `ch:"loan_id"`
	Timestamp time.Time `ch:"timestamp"`
	Outcome   string    `ch:"outcome"`
}

func TestClickHouseBatchFixturesAndCleanup(t *testing.T) {
	helper := NewTestClickHouse(t)
	ctx := context.Background()
	table := helper.CreateTempTable(t, "loan_id UInt64, timestamp DateTime64(3), outcome LowCardinality(String)")

	now := time.Now().UTC().Truncate(time.Millisecond)
	CreateBatch(t, helper, "INSERT INTO "+table, []auditFixture{
		{LoanID: 1, Timestamp: now, Outcome: "success"},
		{LoanID: 2, Timestamp: now, Outcome: "already_liquidated"},
	})

	var count uint64
	require.NoError(t, helper.Client().Conn().QueryRow(ctx, "SELECT count() FROM "+table+" WHERE outcome = 'success'").Scan(&count))
	assert.EqualValues(t, 1, count)

	require.NoError(t, helper.CleanupTable(ctx, table))

	var exists uint8
	require.NoError(t, helper.Client().Conn().QueryRow(ctx, "EXISTS TABLE "+table).Scan(&exists))
	assert.Zero(t, exists)
}
