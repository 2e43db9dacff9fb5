package pricing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidator/internal/domain/price"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// stubProvider answers from a fixed table and records every call
type stubProvider struct {
	name      string
	prices    map[string]float64
	errs      map[string]error
	supported map[string]bool // nil = supports everything
	delay     time.Duration

	mu    sync.Mutex
	calls []string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Quote(ctx context.Context, symbol string) (*price.Quote, error) {
	s.mu.Lock()
	s.calls = append(s.calls, symbol)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if err, ok := s.errs[symbol]; ok {
		return nil, err
	}
	p, ok := s.prices[symbol]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownAsset, "%s: %s", s.name, symbol)
	}
	return &price.Quote{Symbol: symbol, PriceUSD: p, Provider: s.name, Timestamp: time.Now()}, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// tableProvider adds a fixed asset table to stubProvider
type tableProvider struct{ *stubProvider }

func (t tableProvider) Supports(symbol string) bool { return t.supported[symbol] }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestResolver(t *testing.T, primary string, ttl time.Duration, clk *clock, providers ...price.Provider) *Resolver {
	t.Helper()
	set := make(map[string]price.Provider, len(providers))
	for _, p := range providers {
		set[p.Name()] = p
	}
	opts := []CacheOption{}
	if clk != nil {
		opts = append(opts, WithClock(clk.Now))
	}
	r, err := NewResolver(primary, set, NewCache(ttl, opts...), logger.New(zap.NewNop()))
	require.NoError(t, err)
	return r
}

func TestResolver_CacheHitWithinTTL(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"ETH": 3000}}
	r := newTestResolver(t, "coingecko", 5*time.Minute, clk, cg)

	ethID := "0xF8F8B6283D7FA5B672B530CBB84FCCCB4FF8DC40F8176EF4544DDB1F1952AD07"

	p1, err := r.Resolve(context.Background(), ethID)
	require.NoError(t, err)
	clk.Advance(4 * time.Minute)
	p2, err := r.Resolve(context.Background(), "ETH")
	require.NoError(t, err)

	assert.Equal(t, 3000.0, p1)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, cg.callCount(), "second call served from cache")
}

func TestResolver_CacheExpires(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"BTC": 60000}}
	r := newTestResolver(t, "coingecko", time.Minute, clk, cg)

	_, err := r.Resolve(context.Background(), "BTC")
	require.NoError(t, err)

	clk.Advance(time.Minute) // expiry is exclusive
	_, err = r.Resolve(context.Background(), "BTC")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, 2, cg.callCount())
}

func TestResolver_FallbackOrder(t *testing.T) {
	failing := errors.New("upstream 502")

	cmc := &stubProvider{name: "coinmarketcap", errs: map[string]error{"ETH": failing}}
	stork := tableProvider{&stubProvider{
		name:      "stork",
		errs:      map[string]error{"ETH": errors.Wrap(errors.ErrRateLimited, "stork")},
		supported: map[string]bool{"ETH": true},
	}}
	cg := &stubProvider{name: "coingecko", errs: map[string]error{"ETH": failing}}
	pyth := tableProvider{&stubProvider{
		name:      "pyth",
		prices:    map[string]float64{"ETH": 3100},
		supported: map[string]bool{"ETH": true},
	}}

	r := newTestResolver(t, "coinmarketcap", time.Minute, nil, cmc, stork, cg, pyth)

	q, err := r.ResolveQuote(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, "pyth", q.Provider)
	assert.Equal(t, 3100.0, q.PriceUSD)

	assert.Equal(t, 1, cmc.callCount())
	assert.Equal(t, 1, stork.callCount())
	assert.Equal(t, 1, cg.callCount())
	assert.Equal(t, 1, pyth.callCount())

	// Cached under the fallback's answer
	q2, err := r.ResolveQuote(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Same(t, q, q2)
}

func TestResolver_FallbackSkipsUnsupportedAndPrimary(t *testing.T) {
	stork := tableProvider{&stubProvider{name: "stork", supported: map[string]bool{"ETH": true}}}
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"FUEL": 0.04}}
	pyth := tableProvider{&stubProvider{name: "pyth", supported: map[string]bool{"ETH": true}}}

	// Pyth as primary has no FUEL feed: go straight to fallbacks, stork lacks FUEL too
	r := newTestResolver(t, "pyth", time.Minute, nil, stork, cg, pyth)

	p, err := r.Resolve(context.Background(), "0x1d5d97005e41cae2187a895fd8eab0506111e0e2f3331cd3912c15c24e3c1d82")
	require.NoError(t, err)
	assert.Equal(t, 0.04, p)
	assert.Zero(t, pyth.callCount())
	assert.Zero(t, stork.callCount())
	assert.Equal(t, 1, cg.callCount())
}

func TestResolver_AllProvidersFail(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"ETH": 3000}}
	pyth := tableProvider{&stubProvider{
		name:      "pyth",
		errs:      map[string]error{"ETH": errors.New("hermes down")},
		supported: map[string]bool{"ETH": true},
	}}
	r := newTestResolver(t, "coingecko", time.Minute, clk, cg, pyth)

	_, err := r.Resolve(context.Background(), "ETH")
	require.NoError(t, err)

	// Expire the entry, then make every provider fail
	clk.Advance(2 * time.Minute)
	cg.errs = map[string]error{"ETH": errors.Wrap(errors.ErrRateLimited, "coingecko")}

	_, err = r.Resolve(context.Background(), "ETH")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAllProvidersExhausted))
	assert.True(t, errors.Is(err, errors.ErrRateLimited), "causes are kept")
	assert.Contains(t, err.Error(), "hermes down")

	// The stale entry was not replaced
	r.cache.mu.RLock()
	e := r.cache.entries["ETH"]
	r.cache.mu.RUnlock()
	assert.Equal(t, 3000.0, e.quote.PriceUSD)
	assert.Equal(t, time.Unix(1_700_000_000, 0).Add(time.Minute), e.expiresAt)
}

func TestResolver_ZeroPriceIsFailure(t *testing.T) {
	stork := tableProvider{&stubProvider{
		name:      "stork",
		prices:    map[string]float64{"USDC": 0},
		supported: map[string]bool{"USDC": true},
	}}
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"USDC": 1.0}}
	r := newTestResolver(t, "stork", time.Minute, nil, stork, cg)

	q, err := r.ResolveQuote(context.Background(), "usdc")
	require.NoError(t, err)
	assert.Equal(t, "coingecko", q.Provider)
	assert.Equal(t, 1.0, q.PriceUSD)
}

func TestResolver_UnknownIdentifierLookedUpLiterally(t *testing.T) {
	unknown := "0xabc0000000000000000000000000000000000000000000000000000000000001"
	cmc := &stubProvider{name: "coinmarketcap"}
	cg := &stubProvider{name: "coingecko"}
	r := newTestResolver(t, "coinmarketcap", time.Minute, nil, cmc, cg)

	_, err := r.Resolve(context.Background(), unknown)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAllProvidersExhausted))
	assert.True(t, errors.Is(err, errors.ErrUnknownAsset))
	assert.Equal(t, []string{unknown}, cmc.calls)
}

func TestResolver_ConcurrentMissesShareOneCall(t *testing.T) {
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"ETH": 3000}, delay: 50 * time.Millisecond}
	r := newTestResolver(t, "coingecko", time.Minute, nil, cg)

	var (
		wg  sync.WaitGroup
		bad atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, err := r.Resolve(context.Background(), "ETH"); err != nil || p != 3000 {
				bad.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, bad.Load())
	assert.Equal(t, 1, cg.callCount())
}

func TestResolver_ResolveMany(t *testing.T) {
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"ETH": 3000, "USDC": 1}}
	r := newTestResolver(t, "coingecko", time.Minute, nil, cg)

	got, err := r.ResolveMany(context.Background(), []string{"ETH", "USDC"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"ETH": 3000, "USDC": 1}, got)

	_, err = r.ResolveMany(context.Background(), []string{"ETH", "DOGE"})
	assert.True(t, errors.Is(err, errors.ErrAllProvidersExhausted))
}

// The caller that starts a shared fetch gives up; another caller still
// waiting on the same symbol gets the price and it is cached.
func TestResolver_SharedFetchOutlivesFirstCaller(t *testing.T) {
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"USDC": 1}, delay: 200 * time.Millisecond}
	r := newTestResolver(t, "coingecko", time.Minute, nil, cg)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, "USDC")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return cg.callCount() == 1 }, time.Second, time.Millisecond)

	second := make(chan float64, 1)
	secondErr := make(chan error, 1)
	go func() {
		p, err := r.Resolve(context.Background(), "USDC")
		second <- p
		secondErr <- err
	}()

	cancelFirst()
	assert.True(t, errors.Is(<-firstErr, context.Canceled))

	require.NoError(t, <-secondErr)
	assert.Equal(t, 1.0, <-second)

	_, err := r.Resolve(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, 1, cg.callCount(), "one provider call served everyone and filled the cache")
}

func TestResolver_ResolveManyDeduplicates(t *testing.T) {
	cg := &stubProvider{name: "coingecko", prices: map[string]float64{"USDC": 1}}
	r := newTestResolver(t, "coingecko", time.Minute, nil, cg)

	got, err := r.ResolveMany(context.Background(), []string{"USDC", "USDC"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"USDC": 1}, got)
	assert.Equal(t, 1, cg.callCount())
}

func TestNewResolver_UnknownPrimary(t *testing.T) {
	_, err := NewResolver("binance", map[string]price.Provider{}, NewCache(time.Minute), nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestNormalizeAsset(t *testing.T) {
	tests := []struct {
		in     string
		symbol string
		known  bool
	}{
		{"0xf8f8b6283d7fa5b672b530cbb84fcccb4ff8dc40f8176ef4544ddb1f1952ad07", "ETH", true},
		{"0xD02112EF9C39F1CEA7C8527C26242CA1F5D26BCFE8D1564BEE054D3B04175471", "USDC", true},
		{"0x1d5d97005e41cae2187a895fd8eab0506111e0e2f3331cd3912c15c24e3c1d82", "FUEL", true},
		{"eth", "ETH", false},
		{"0xdeadbeef", "0xdeadbeef", false},
		{"some/weird id", "some/weird id", false},
	}
	for _, tt := range tests {
		symbol, known := NormalizeAsset(tt.in)
		assert.Equal(t, tt.symbol, symbol, tt.in)
		assert.Equal(t, tt.known, known, tt.in)
	}
}
