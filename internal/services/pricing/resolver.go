package pricing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"liquidator/internal/domain/price"
	"liquidator/internal/metrics"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// Provider names with special places in the fallback chain
const (
	ProviderStork     = "stork"
	ProviderCoinGecko = "coingecko"
	ProviderPyth      = "pyth"
)

// Upper bound on one shared provider walk, fallbacks included
const defaultFetchTimeout = 30 * time.Second

// Resolver turns an asset identifier into a USD price using the primary
// provider, a fixed fallback chain and a TTL cache.
type Resolver struct {
	primary      string
	providers    map[string]price.Provider
	cache        *Cache
	group        singleflight.Group
	fetchTimeout time.Duration
	log          *logger.Logger
}

// NewResolver fails if the primary provider is not among providers
func NewResolver(primary string, providers map[string]price.Provider, cache *Cache, log *logger.Logger) (*Resolver, error) {
	if _, ok := providers[primary]; !ok {
		return nil, errors.NewValidationError("primary", "provider not registered", primary)
	}
	if cache == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "price cache is required")
	}
	if log == nil {
		log = logger.Get()
	}
	return &Resolver{
		primary:      primary,
		providers:    providers,
		cache:        cache,
		fetchTimeout: defaultFetchTimeout,
		log:          log.Component("price_resolver"),
	}, nil
}

// Resolve returns the USD price of assetID
func (r *Resolver) Resolve(ctx context.Context, assetID string) (float64, error) {
	q, err := r.ResolveQuote(ctx, assetID)
	if err != nil {
		return 0, err
	}
	return q.PriceUSD, nil
}

// ResolveQuote is Resolve with provider and timestamp attached
func (r *Resolver) ResolveQuote(ctx context.Context, assetID string) (*price.Quote, error) {
	symbol, known := NormalizeAsset(assetID)
	if symbol == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty asset identifier")
	}

	if q, ok := r.cache.Get(symbol); ok {
		metrics.RecordPriceCache(true)
		return q, nil
	}
	metrics.RecordPriceCache(false)

	if !known {
		r.log.Debugw("Unmapped asset identifier, looking up literally", "asset", assetID, "symbol", symbol)
	}

	// Concurrent misses for one symbol share a single provider walk. The walk
	// is detached from whichever caller started it; each caller stops waiting
	// when its own context ends.
	ch := r.group.DoChan(symbol, func() (interface{}, error) {
		if q, ok := r.cache.Get(symbol); ok {
			return q, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		return r.fetch(fetchCtx, symbol)
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "resolve %s", symbol)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*price.Quote), nil
	}
}

// ResolveMany resolves several assets concurrently, keyed by the input identifier
func (r *Resolver) ResolveMany(ctx context.Context, assetIDs []string) (map[string]float64, error) {
	var (
		mu     sync.Mutex
		result = make(map[string]float64, len(assetIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool, len(assetIDs))
	for _, id := range assetIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			p, err := r.Resolve(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			result[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Resolver) Primary() string { return r.primary }

func (r *Resolver) fetch(ctx context.Context, symbol string) (*price.Quote, error) {
	var errs errors.MultiError

	for i, p := range r.chain(symbol) {
		q, err := r.quote(ctx, p, symbol)
		if err == nil {
			r.cache.Set(symbol, q)
			if i > 0 {
				r.log.Infow("Price resolved by fallback provider",
					"symbol", symbol,
					"provider", p.Name(),
					"price", q.PriceUSD,
				)
			}
			return q, nil
		}

		errs.Add(err)
		if errors.Is(err, errors.ErrRateLimited) {
			r.log.Warnw("Price provider rate limited", "symbol", symbol, "provider", p.Name())
		} else {
			r.log.Warnw("Price provider failed", "symbol", symbol, "provider", p.Name(), "error", err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	if !errs.HasErrors() {
		errs.Add(errors.Newf("no provider can price %s", symbol))
	}
	r.log.Errorw("All price providers failed", "symbol", symbol, "errors", len(errs.Errors))
	return nil, fmt.Errorf("%w for %s: %w", errors.ErrAllProvidersExhausted, symbol, &errs)
}

// chain is the primary followed by stork, coingecko and pyth, skipping the
// primary itself and providers with a fixed asset table that lacks symbol.
// Coingecko stays in the chain regardless; it fails fast on unmapped symbols.
func (r *Resolver) chain(symbol string) []price.Provider {
	out := make([]price.Provider, 0, 4)

	if p := r.providers[r.primary]; price.Supports(p, symbol) {
		out = append(out, p)
	} else {
		r.log.Debugw("Primary provider does not support asset, using fallbacks",
			"symbol", symbol, "provider", r.primary)
	}

	for _, name := range []string{ProviderStork, ProviderCoinGecko, ProviderPyth} {
		if name == r.primary {
			continue
		}
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		if name != ProviderCoinGecko && !price.Supports(p, symbol) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Resolver) quote(ctx context.Context, p price.Provider, symbol string) (*price.Quote, error) {
	start := time.Now()
	q, err := p.Quote(ctx, symbol)
	if err == nil {
		err = validQuote(p.Name(), symbol, q)
	}
	metrics.RecordPriceRequest(p.Name(), time.Since(start), errors.Is(err, errors.ErrRateLimited), err)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func validQuote(provider, symbol string, q *price.Quote) error {
	if q == nil {
		return errors.Newf("%s: empty quote for %s", provider, symbol)
	}
	if math.IsNaN(q.PriceUSD) || math.IsInf(q.PriceUSD, 0) || q.PriceUSD <= 0 {
		return errors.Wrapf(errors.ErrInvalidPrice, "%s: %s price %v", provider, symbol, q.PriceUSD)
	}
	return nil
}
