package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	chclient "liquidator/internal/adapters/clickhouse"
	pgclient "liquidator/internal/adapters/postgres"
	redisclient "liquidator/internal/adapters/redis"
	"liquidator/internal/domain/notification"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 2 * time.Minute, // an in-flight liquidation may wait for its receipt
	}
}

// Shutdown stops components in dependency order:
// 1. No new HTTP requests
// 2. The scan loop drains its in-flight cycle
// 3. Operators are told the bot stopped
// 4. Buffered audit records and events are flushed
// 5. Logs and errors flushed
// 6. Connections closed last
func (l *Lifecycle) Shutdown(c *Container) {
	log := c.Log
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	log.Info("[1/8] Stopping HTTP server...")
	if c.Application.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := c.Application.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		} else {
			log.Info("✓ HTTP server stopped")
		}
		httpCancel()
	}
	l.waitForGoroutines(c.WG, 5*time.Second, log)

	// ========================================
	// Step 2: Drain the scan loop
	// ========================================
	log.Info("[2/8] Stopping scan loop...")
	if c.Background.WorkerScheduler != nil {
		if err := c.Background.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Scan loop did not drain", "error", err)
		} else {
			log.Info("✓ Scan loop stopped")
		}
	}

	// ========================================
	// Step 3: Notify operators
	// ========================================
	log.Info("[3/8] Sending stop notification...")
	if c.Services.Dispatcher != nil {
		fields := map[string]interface{}{}
		if c.Background.Scanner != nil {
			h := c.Background.Scanner.Health()
			fields["scans"] = h.RunCount
			fields["scan_errors"] = h.ErrorCount
		}
		c.Services.Dispatcher.Notify(shutdownCtx, notification.KindBotStopped, notification.SeverityWarning,
			"Liquidation bot stopped", fields)
	}

	// ========================================
	// Step 4: Flush audit log
	// ========================================
	log.Info("[4/8] Flushing liquidation audit log...")
	if c.Repos.Audit != nil {
		auditCtx, auditCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := c.Repos.Audit.Stop(auditCtx); err != nil {
			log.Errorw("Audit log flush failed", "error", err)
		} else {
			log.Info("✓ Audit log flushed")
		}
		auditCancel()
	}

	// ========================================
	// Step 5: Close Kafka Producer
	// ========================================
	log.Info("[5/8] Closing Kafka producer...")
	if c.Adapters.KafkaProducer != nil {
		if err := c.Adapters.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 6: Flush Error Tracker
	// ========================================
	log.Info("[6/8] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, c.ErrorTracker, log)

	// ========================================
	// Step 7: Sync Logs
	// ========================================
	log.Info("[7/8] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	} else {
		log.Info("✓ Logs synced")
	}

	// ========================================
	// Step 8: Close Connections
	// LAST - other components may need them during shutdown
	// ========================================
	log.Info("[8/8] Closing connections...")
	l.closeConnections(c.Adapters.EthClient, c.PG, c.CH, c.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

func (l *Lifecycle) closeConnections(
	eth *ethclient.Client,
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var closeErrors []error

	if eth != nil {
		eth.Close()
	}

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			closeErrors = append(closeErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			closeErrors = append(closeErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			closeErrors = append(closeErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(closeErrors) > 0 {
		log.Errorw("Connection close errors", "errors", errors.Join(closeErrors...))
	} else {
		log.Info("✓ Connections closed")
	}
}
