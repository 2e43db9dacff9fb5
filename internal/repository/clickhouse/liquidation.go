package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"liquidator/internal/domain/liquidation"
	"liquidator/internal/metrics"
	"liquidator/pkg/clickhouse"
	"liquidator/pkg/errors"
)

// Compile-time check
var _ liquidation.Repository = (*LiquidationRepository)(nil)

const liquidationTable = "liquidation_audit"

const createLiquidationTable = `
	CREATE TABLE IF NOT EXISTS liquidation_audit (
		loan_id        UInt64,
		timestamp      DateTime64(3, 'UTC'),
		outcome        LowCardinality(String),
		trigger        LowCardinality(String),
		health_factor  Float64,
		collateral_usd Float64,
		debt_usd       Float64,
		tx_ref         String,
		reason         String,
		attempts       UInt8,
		dry_run        Bool
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (timestamp, loan_id)`

// LiquidationRepository writes the liquidation audit log. Inserts are
// buffered and sent in batches.
type LiquidationRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter[*liquidation.Record]
}

func NewLiquidationRepository(conn driver.Conn) *LiquidationRepository {
	repo := &LiquidationRepository{conn: conn}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[*liquidation.Record]{
		FlushFunc:    repo.flushBatch,
		TableName:    liquidationTable,
		MaxBatchSize: 100,
		MaxAge:       5 * time.Second,
	})

	return repo
}

// EnsureSchema creates the audit table when missing
func (r *LiquidationRepository) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, createLiquidationTable); err != nil {
		return errors.Wrap(err, "create liquidation_audit")
	}
	return nil
}

// Start begins the background flush loop
func (r *LiquidationRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes what is buffered and shuts the writer down
func (r *LiquidationRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Insert buffers an audit record
func (r *LiquidationRepository) Insert(ctx context.Context, rec *liquidation.Record) error {
	if rec == nil {
		return errors.Wrap(errors.ErrInvalidInput, "nil liquidation record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return r.batchWriter.Add(ctx, rec)
}

// flushBatch sends one INSERT for the whole batch
func (r *LiquidationRepository) flushBatch(ctx context.Context, batch []*liquidation.Record) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", "liquidation_audit_insert", time.Since(start), err) }()

	b, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO liquidation_audit (
			loan_id, timestamp, outcome, trigger, health_factor,
			collateral_usd, debt_usd, tx_ref, reason, attempts, dry_run
		)`)
	if err != nil {
		return errors.Wrap(err, "prepare batch")
	}

	for _, rec := range batch {
		if err := b.AppendStruct(rec); err != nil {
			_ = b.Abort()
			return errors.Wrapf(err, "append loan %d", rec.LoanID)
		}
	}

	if err := b.Send(); err != nil {
		return errors.Wrap(err, "send batch")
	}
	return nil
}
