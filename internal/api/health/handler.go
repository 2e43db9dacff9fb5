package health

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"
	"time"

	"liquidator/internal/workers"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// Check probes one dependency
type Check struct {
	Name string
	// Required checks gate readiness; optional ones only degrade /health
	Required bool
	Probe    func(ctx context.Context) error
}

// WalletReader is satisfied by *chain.Client
type WalletReader interface {
	Address() string
	Balance(ctx context.Context) (*big.Int, error)
}

// ScanReporter exposes the last scan, satisfied by the scanner worker
type ScanReporter interface {
	Health() workers.WorkerHealth
}

// SchedulerState is satisfied by *workers.Scheduler
type SchedulerState interface {
	IsRunning() bool
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      []Check
	wallet      WalletReader
	minBalance  *big.Int
	scheduler   SchedulerState
	scanner     ScanReporter
	startTime   time.Time
	serviceName string
	version     string
}

type Config struct {
	ServiceName string
	Version     string
	MinBalance  *big.Int // wallet below this fails readiness; nil disables
}

func New(
	cfg Config,
	log *logger.Logger,
	wallet WalletReader,
	scheduler SchedulerState,
	scanner ScanReporter,
	checks ...Check,
) *Handler {
	return &Handler{
		log:         log.Component("health"),
		checks:      checks,
		wallet:      wallet,
		minBalance:  cfg.MinBalance,
		scheduler:   scheduler,
		scanner:     scanner,
		startTime:   time.Now(),
		serviceName: cfg.ServiceName,
		version:     cfg.Version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
	Bot       *BotStatus                 `json:"bot,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	Required     bool   `json:"required"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BotStatus mirrors what an operator asks first: is it scanning, and can it pay gas
type BotStatus struct {
	Running       bool   `json:"running"`
	Wallet        string `json:"wallet,omitempty"`
	WalletBalance string `json:"wallet_balance_wei,omitempty"`
	LastScanTime  string `json:"last_scan_time,omitempty"`
	LastScanError string `json:"last_scan_error,omitempty"`
	ScanCount     int64  `json:"scan_count"`
	ScanErrors    int64  `json:"scan_errors"`
}

// HandleLiveness returns 200 OK if the process is up
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness fails when any required dependency is down
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.runChecks(ctx)
	status := h.status(checks)

	statusCode := http.StatusOK
	for _, c := range checks {
		if c.Required && c.Status != statusHealthy {
			status.Status = statusUnhealthy
			statusCode = http.StatusServiceUnavailable
		}
	}
	if statusCode != http.StatusOK {
		h.log.Warnw("Readiness check failed", "checks", checks)
	}

	writeJSON(w, statusCode, status)
}

// HandleHealth returns every check plus scan state
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := h.runChecks(ctx)
	status := h.status(checks)
	status.Bot = h.botStatus(ctx)

	statusCode := http.StatusOK
	healthy := 0
	for _, c := range checks {
		if c.Status == statusHealthy {
			healthy++
			continue
		}
		if c.Required {
			status.Status = statusUnhealthy
			statusCode = http.StatusServiceUnavailable
		} else if status.Status == statusHealthy {
			status.Status = statusDegraded
		}
	}
	if len(checks) > 0 && healthy == 0 {
		status.Status = statusUnhealthy
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, status)
}

func (h *Handler) status(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    statusHealthy,
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
}

// runChecks probes every dependency concurrently, including the wallet balance
func (h *Handler) runChecks(ctx context.Context) map[string]ComponentHealth {
	all := h.checks
	if h.wallet != nil && h.minBalance != nil {
		all = append(append([]Check{}, h.checks...), Check{
			Name:     "wallet_balance",
			Required: true,
			Probe:    h.checkBalance,
		})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]ComponentHealth, len(all))
	)
	for _, check := range all {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()
			res := h.probe(ctx, check)
			mu.Lock()
			results[check.Name] = res
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return results
}

func (h *Handler) probe(ctx context.Context, check Check) ComponentHealth {
	start := time.Now()
	err := check.Probe(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Warnw("Health check failed", "check", check.Name, "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       statusUnhealthy,
			Required:     check.Required,
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}
	return ComponentHealth{
		Status:       statusHealthy,
		Required:     check.Required,
		ResponseTime: elapsed.String(),
	}
}

func (h *Handler) checkBalance(ctx context.Context) error {
	bal, err := h.wallet.Balance(ctx)
	if err != nil {
		return err
	}
	if bal.Cmp(h.minBalance) < 0 {
		return errors.Newf("balance %s wei below minimum %s wei", bal, h.minBalance)
	}
	return nil
}

func (h *Handler) botStatus(ctx context.Context) *BotStatus {
	bs := &BotStatus{}
	if h.scheduler != nil {
		bs.Running = h.scheduler.IsRunning()
	}
	if h.wallet != nil {
		bs.Wallet = h.wallet.Address()
		if bal, err := h.wallet.Balance(ctx); err == nil {
			bs.WalletBalance = bal.String()
		} else {
			h.log.Warnw("Failed to read wallet balance", "error", err)
		}
	}
	if h.scanner != nil {
		wh := h.scanner.Health()
		if !wh.LastRun.IsZero() {
			bs.LastScanTime = wh.LastRun.UTC().Format(time.RFC3339)
		}
		if wh.LastError != nil {
			bs.LastScanError = wh.LastError.Error()
		}
		bs.ScanCount = wh.RunCount
		bs.ScanErrors = wh.ErrorCount
	}
	return bs
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
