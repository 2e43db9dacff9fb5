package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"liquidator/internal/adapters/postgres"
)

// PostgresTestHelper holds one transaction that is rolled back on cleanup,
// so fixtures never leak into the shared loan store.
type PostgresTestHelper struct {
	client     *postgres.Client
	tx         *sqlx.Tx
	rolledBack bool
}

// NewTestPostgres skips unless the postgres env is set
func NewTestPostgres(t *testing.T) *PostgresTestHelper {
	t.Helper()
	cfg := PostgresConfigFromEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create postgres client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	tx, err := client.DB().BeginTxx(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to start transaction: %v", err)
	}

	helper := &PostgresTestHelper{client: client, tx: tx}
	t.Cleanup(helper.Rollback)
	return helper
}

// NewLoanStore returns a transaction holding a fresh loans table seeded with rows
func NewLoanStore(t *testing.T, rows ...LoanRow) *sqlx.Tx {
	t.Helper()
	helper := NewTestPostgres(t)
	CreateLoansTable(t, helper.Tx())
	InsertLoans(t, helper.Tx(), rows...)
	return helper.Tx()
}

func (h *PostgresTestHelper) Tx() *sqlx.Tx {
	return h.tx
}

func (h *PostgresTestHelper) DB() *sqlx.DB {
	return h.client.DB()
}

// Rollback is idempotent
func (h *PostgresTestHelper) Rollback() {
	if h.rolledBack {
		return
	}
	_ = h.tx.Rollback()
	h.rolledBack = true
}
