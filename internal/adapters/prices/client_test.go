package prices

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidator/pkg/errors"
)

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-Key"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("test", Options{})
	body, err := c.Get(context.Background(), srv.URL, map[string]string{"X-Key": "k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestClient_Get_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient("coingecko", Options{}).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
}

func TestClient_Get_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient("pyth", Options{}).Get(context.Background(), srv.URL, nil)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode())
	assert.Contains(t, httpErr.Body, "upstream down")
	assert.False(t, errors.Is(err, errors.ErrRateLimited))
}

func TestCheckPrice(t *testing.T) {
	assert.NoError(t, CheckPrice("p", "ETH", 3000))
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.True(t, errors.Is(CheckPrice("p", "ETH", bad), errors.ErrInvalidPrice), "%v", bad)
	}
}
