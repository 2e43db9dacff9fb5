package liquidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	chainadapter "liquidator/internal/adapters/chain"
	"liquidator/internal/domain/liquidation"
	"liquidator/internal/domain/loan"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

type MockChain struct {
	mock.Mock
}

func (m *MockChain) ReadView(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callArgs := m.Called(ctx, method, args)
	if v := callArgs.Get(0); v != nil {
		return v.([]interface{}), callArgs.Error(1)
	}
	return nil, callArgs.Error(1)
}

func (m *MockChain) Submit(ctx context.Context, method string, args ...interface{}) (string, error) {
	callArgs := m.Called(ctx, method, args)
	return callArgs.String(0), callArgs.Error(1)
}

type MockLocker struct {
	mock.Mock
	released int
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, key, ttl)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

var fixedNow = time.UnixMilli(1_700_000_000_123)

func newTestExecutor(cfg Config, chain Chain, locker Locker, sleeps *sleepRecorder) *Executor {
	return NewExecutor(cfg, chain, locker, logger.New(zap.NewNop()),
		WithSleep(sleeps.sleep),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func status(s loan.Status) []interface{} {
	return []interface{}{uint8(s)}
}

func TestLiquidate_DryRunNeverTouchesChain(t *testing.T) {
	chain := new(MockChain)
	locker := new(MockLocker)
	sleeps := &sleepRecorder{}

	res := newTestExecutor(Config{DryRun: true, MaxRetries: 3, PreFlightValidation: true}, chain, locker, sleeps).
		Liquidate(context.Background(), 42)

	assert.True(t, res.Succeeded())
	assert.True(t, res.DryRun)
	assert.Equal(t, "0xDRYRUN_42_1700000000123", res.TxRef)
	chain.AssertNotCalled(t, "ReadView", mock.Anything, mock.Anything, mock.Anything)
	chain.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	locker.AssertNotCalled(t, "TryLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestLiquidate_PreFlightNotActive(t *testing.T) {
	chain := new(MockChain)
	chain.On("ReadView", mock.Anything, chainadapter.MethodGetLoanStatus, []interface{}{uint64(42)}).Return(status(loan.StatusRepaid), nil)
	sleeps := &sleepRecorder{}

	res := newTestExecutor(Config{MaxRetries: 3, PreFlightValidation: true}, chain, nil, sleeps).
		Liquidate(context.Background(), 42)

	assert.Equal(t, liquidation.OutcomeNotActive, res.Outcome)
	assert.Equal(t, "loan not active (status=repaid)", res.Reason)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.Benign())
	assert.Empty(t, sleeps.delays)
	chain.AssertNumberOfCalls(t, "ReadView", 1)
	chain.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestLiquidate_PreFlightReadFailureFailsOpen(t *testing.T) {
	chain := new(MockChain)
	chain.On("ReadView", mock.Anything, chainadapter.MethodGetLoanStatus, mock.Anything).Return(nil, errors.New("rpc timeout"))
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, []interface{}{uint64(5)}).Return("0xabc", nil)

	res := newTestExecutor(Config{MaxRetries: 3, PreFlightValidation: true}, chain, nil, &sleepRecorder{}).
		Liquidate(context.Background(), 5)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "0xabc", res.TxRef)
	assert.Equal(t, 1, res.Attempts)
	chain.AssertExpectations(t)
}

func TestLiquidate_PreFlightDisabled(t *testing.T) {
	chain := new(MockChain)
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, []interface{}{uint64(5)}).Return("0xabc", nil)

	res := newTestExecutor(Config{MaxRetries: 1}, chain, nil, &sleepRecorder{}).Liquidate(context.Background(), 5)

	assert.True(t, res.Succeeded())
	chain.AssertNotCalled(t, "ReadView", mock.Anything, mock.Anything, mock.Anything)
}

func TestLiquidate_SucceedsAfterFailures(t *testing.T) {
	chain := new(MockChain)
	chain.On("ReadView", mock.Anything, chainadapter.MethodGetLoanStatus, mock.Anything).Return(status(loan.StatusActive), nil)
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, mock.Anything).Return("", errors.New("nonce too low")).Twice()
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, mock.Anything).Return("0xfeed", nil).Once()
	sleeps := &sleepRecorder{}

	res := newTestExecutor(Config{MaxRetries: 3, PreFlightValidation: true}, chain, nil, sleeps).
		Liquidate(context.Background(), 9)

	require.True(t, res.Succeeded())
	assert.Equal(t, "0xfeed", res.TxRef)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.delays)
	chain.AssertNumberOfCalls(t, "Submit", 3)
}

func TestLiquidate_ExhaustsRetries(t *testing.T) {
	chain := new(MockChain)
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, mock.Anything).Return("", errors.New("insufficient funds for gas"))
	sleeps := &sleepRecorder{}

	res := newTestExecutor(Config{MaxRetries: 4}, chain, nil, sleeps).Liquidate(context.Background(), 9)

	assert.Equal(t, liquidation.OutcomeFailed, res.Outcome)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, "Failed after 4 attempts: insufficient funds for gas", res.Reason)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeps.delays)
	chain.AssertNumberOfCalls(t, "Submit", 4)
}

func TestLiquidate_RaceConditionNotRetried(t *testing.T) {
	tests := []string{
		"execution reverted: CannotLiquidate",
		"submit liquidate_loan: execution reverted: EInvalidStatus",
		"Loan cannot liquidate right now",
	}

	for _, msg := range tests {
		t.Run(msg, func(t *testing.T) {
			chain := new(MockChain)
			chain.On("ReadView", mock.Anything, chainadapter.MethodGetLoanStatus, mock.Anything).Return(status(loan.StatusActive), nil)
			chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, mock.Anything).Return("", errors.New(msg))
			sleeps := &sleepRecorder{}

			res := newTestExecutor(Config{MaxRetries: 3, PreFlightValidation: true}, chain, nil, sleeps).
				Liquidate(context.Background(), 77)

			assert.Equal(t, liquidation.OutcomeRaceCondition, res.Outcome)
			assert.Equal(t, 1, res.Attempts)
			assert.Empty(t, sleeps.delays)
			chain.AssertNumberOfCalls(t, "Submit", 1)
		})
	}
}

func TestLiquidate_LockHeldElsewhere(t *testing.T) {
	chain := new(MockChain)
	locker := new(MockLocker)
	locker.On("TryLock", mock.Anything, "liquidation:3", 5*time.Minute).Return(errors.Wrap(errors.ErrLockNotAcquired, "lock:liquidation:3"))

	res := newTestExecutor(Config{MaxRetries: 3}, chain, locker, &sleepRecorder{}).Liquidate(context.Background(), 3)

	assert.Equal(t, liquidation.OutcomeInProgress, res.Outcome)
	assert.True(t, res.Benign())
	chain.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestLiquidate_LockReleasedAfterSuccess(t *testing.T) {
	chain := new(MockChain)
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, mock.Anything).Return("0x1", nil)
	locker := new(MockLocker)
	locker.On("TryLock", mock.Anything, "liquidation:3", time.Minute).Return(nil)

	res := newTestExecutor(Config{MaxRetries: 3, LockTTL: time.Minute}, chain, locker, &sleepRecorder{}).
		Liquidate(context.Background(), 3)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, locker.released)
}

func TestLiquidate_LockCoversWholeRetryChain(t *testing.T) {
	chain := new(MockChain)
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, mock.Anything).Return("0x1", nil)
	locker := new(MockLocker)
	// 3 attempts x 2m receipt wait + 2s + 4s backoff
	locker.On("TryLock", mock.Anything, "liquidation:8", 6*time.Minute+6*time.Second).Return(nil)

	e := newTestExecutor(Config{MaxRetries: 3, LockTTL: 5 * time.Minute, AttemptTimeout: 2 * time.Minute}, chain, locker, &sleepRecorder{})
	assert.Equal(t, 6*time.Minute+6*time.Second, e.LockTTL())

	res := e.Liquidate(context.Background(), 8)
	assert.True(t, res.Succeeded())
	locker.AssertExpectations(t)

	long := newTestExecutor(Config{MaxRetries: 3, LockTTL: 10 * time.Minute, AttemptTimeout: 2 * time.Minute}, chain, locker, &sleepRecorder{})
	assert.Equal(t, 10*time.Minute, long.LockTTL(), "configured TTL kept when already long enough")
}

func TestLiquidate_LockBackendDownFailsOpen(t *testing.T) {
	chain := new(MockChain)
	chain.On("Submit", mock.Anything, chainadapter.MethodLiquidateLoan, mock.Anything).Return("0x1", nil)
	locker := new(MockLocker)
	locker.On("TryLock", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("dial tcp: connection refused"))

	res := newTestExecutor(Config{MaxRetries: 3}, chain, locker, &sleepRecorder{}).Liquidate(context.Background(), 3)

	assert.True(t, res.Succeeded())
}

func TestIsRaceCondition(t *testing.T) {
	assert.False(t, IsRaceCondition(nil))
	assert.False(t, IsRaceCondition(errors.New("nonce too low")))
	assert.True(t, IsRaceCondition(errors.New("Revert: CANNOTLIQUIDATE")))
}
