package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// Source is where the gateway reads products from.
type Source interface {
	Products(ctx context.Context) ([]domain.Product, error)
}

// ItemSource is a Source that can read one product without listing the catalog.
type ItemSource interface {
	Source
	Product(ctx context.Context, id string) (*domain.Product, error)
}

type Options struct {
	CacheTTL        time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Gateway implements port.Catalog. Concurrent reads collapse into one upstream
// call and a short cache window absorbs bursts. Every failure surfaces as
// port.ErrCatalogUnavailable.
type Gateway struct {
	source   Source
	cache    port.CacheRepository
	cacheTTL time.Duration
	breaker  *gobreaker.CircuitBreaker[[]domain.Product]
	sfg      singleflight.Group
	metrics  *metrics.Metrics
}

// NewGateway builds the gateway. cache may be nil.
func NewGateway(source Source, cache port.CacheRepository, m *metrics.Metrics, opts Options) *Gateway {
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]domain.Product](gobreaker.Settings{
		Name:    "catalog",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Gateway{
		source:   source,
		cache:    cache,
		cacheTTL: opts.CacheTTL,
		breaker:  breaker,
		metrics:  m,
	}
}

func (g *Gateway) FetchAll(ctx context.Context) ([]domain.Product, error) {
	if products, ok := g.cached(ctx); ok {
		g.metrics.CatalogFetches.WithLabelValues("cached").Inc()
		return products, nil
	}

	v, err, _ := g.sfg.Do("catalog", func() (interface{}, error) {
		return g.breaker.Execute(func() ([]domain.Product, error) {
			return g.source.Products(ctx)
		})
	})
	if err != nil {
		g.metrics.CatalogFetches.WithLabelValues("unavailable").Inc()
		log.Error().Err(err).Msg("catalog fetch failed")
		return nil, fmt.Errorf("%w: %v", port.ErrCatalogUnavailable, err)
	}
	g.metrics.CatalogFetches.WithLabelValues("ok").Inc()

	products := v.([]domain.Product)
	g.store(ctx, products)
	return products, nil
}

func (g *Gateway) FetchOne(ctx context.Context, id string) (*domain.Product, error) {
	if src, ok := g.source.(ItemSource); ok {
		return g.fetchItem(ctx, src, id)
	}

	products, err := g.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if p.ID == id {
			product := p
			return &product, nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", id, port.ErrProductNotFound)
}

func (g *Gateway) fetchItem(ctx context.Context, src ItemSource, id string) (*domain.Product, error) {
	product, err := src.Product(ctx, id)
	if errors.Is(err, port.ErrProductNotFound) {
		return nil, err
	}
	if err != nil {
		g.metrics.CatalogFetches.WithLabelValues("unavailable").Inc()
		log.Error().Err(err).Str("product_id", id).Msg("catalog item fetch failed")
		return nil, fmt.Errorf("%w: %v", port.ErrCatalogUnavailable, err)
	}
	g.metrics.CatalogFetches.WithLabelValues("ok").Inc()
	return product, nil
}

func (g *Gateway) cached(ctx context.Context) ([]domain.Product, bool) {
	if g.cache == nil || g.cacheTTL <= 0 {
		return nil, false
	}
	products, ok, err := g.cache.GetCatalog(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("catalog cache read failed")
		return nil, false
	}
	return products, ok
}

func (g *Gateway) store(ctx context.Context, products []domain.Product) {
	if g.cache == nil || g.cacheTTL <= 0 {
		return
	}
	if err := g.cache.SetCatalog(ctx, products, g.cacheTTL); err != nil {
		log.Warn().Err(err).Msg("catalog cache write failed")
	}
}
