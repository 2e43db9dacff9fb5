package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidator/pkg/errors"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := Wrap(db)
	ctx := context.Background()

	mock.Regexp().ExpectSetNX("lock:liquidation:42", `.+`, 5*time.Minute).SetVal(true)

	lock, err := c.AcquireLock(ctx, "liquidation:42", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)

	mock.ExpectEval(releaseScript, []string{"lock:liquidation:42"}, lock.token).SetVal(int64(1))
	require.NoError(t, c.ReleaseLock(ctx, lock))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := Wrap(db)

	mock.Regexp().ExpectSetNX("lock:liquidation:7", `.+`, time.Minute).SetVal(false)

	lock, err := c.AcquireLock(context.Background(), "liquidation:7", time.Minute)
	assert.Nil(t, lock)
	assert.True(t, errors.Is(err, errors.ErrLockNotAcquired))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_RedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := Wrap(db)

	mock.Regexp().ExpectSetNX("lock:liquidation:7", `.+`, time.Minute).SetErr(errors.New("connection refused"))

	_, err := c.AcquireLock(context.Background(), "liquidation:7", time.Minute)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrLockNotAcquired))
}

func TestReleaseLock_Nil(t *testing.T) {
	db, _ := redismock.NewClientMock()
	assert.NoError(t, Wrap(db).ReleaseLock(context.Background(), nil))
}
