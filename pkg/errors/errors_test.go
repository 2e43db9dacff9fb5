package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiError_UnwrapMatchesSentinels(t *testing.T) {
	var m MultiError
	m.Add(nil)
	m.Add(Wrap(ErrRateLimited, "coingecko"))
	m.Add(Wrapf(ErrUnknownAsset, "pyth: %s", "FUEL"))

	err := Wrap(ErrAllProvidersExhausted, "resolve FUEL")
	err = Join(err, m.ToError())

	assert.True(t, Is(err, ErrAllProvidersExhausted))
	assert.True(t, Is(err, ErrRateLimited))
	assert.True(t, Is(err, ErrUnknownAsset))
	assert.False(t, Is(err, ErrInvalidPrice))
	assert.Len(t, m.Errors, 2)
	assert.Contains(t, m.Error(), "multiple errors (2)")
}

func TestMultiError_Empty(t *testing.T) {
	var m MultiError
	assert.False(t, m.HasErrors())
	assert.NoError(t, m.ToError())
	assert.Equal(t, "no errors", m.Error())
}

func TestValidationError_IsInvalidInput(t *testing.T) {
	err := NewValidationError("threshold", "must be positive", 0)
	assert.True(t, Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "threshold")
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
}
