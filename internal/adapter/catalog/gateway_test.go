package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const listing = `[
	{"product": {"id": 1, "name": "Mug", "price": 19.99, "stock": 10, "sku": "MUG-1"}},
	{"product": {"id": 2, "title": "Cap", "price": "5", "stock_unlimited": true}}
]`

func newCatalogServer(t *testing.T, status int, body string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/products.json" {
			http.NotFound(w, r)
			return
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "shop" || pass != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGateway_FetchAll(t *testing.T) {
	var calls int32
	srv := newCatalogServer(t, http.StatusOK, listing, &calls)
	gw := NewGateway(NewHTTPSource(srv.URL+"/", "shop", "token", time.Second), nil, metrics.New(), Options{})

	products, err := gw.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, domain.Product{ID: "1", Name: "Mug", Price: 1999, Stock: 10, SKU: "MUG-1"}, products[0])
	assert.Equal(t, "Cap", products[1].Name)
	assert.Equal(t, int64(5), products[1].Price)
	assert.Equal(t, domain.UnlimitedStock, products[1].Stock)

	p, err := gw.FetchOne(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "Cap", p.Name)

	_, err = gw.FetchOne(context.Background(), "99")
	assert.ErrorIs(t, err, port.ErrProductNotFound)
}

func TestGateway_FailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{}`},
		{name: "garbage body", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := newCatalogServer(t, tt.status, tt.body, &calls)
			m := metrics.New()
			gw := NewGateway(NewHTTPSource(srv.URL, "shop", "token", time.Second), nil, m, Options{})

			products, err := gw.FetchAll(context.Background())
			assert.ErrorIs(t, err, port.ErrCatalogUnavailable)
			assert.Nil(t, products)

			_, err = gw.FetchOne(context.Background(), "1")
			assert.ErrorIs(t, err, port.ErrCatalogUnavailable)
			assert.False(t, errors.Is(err, port.ErrProductNotFound))
			assert.Equal(t, float64(2), testutil.ToFloat64(m.CatalogFetches.WithLabelValues("unavailable")))
		})
	}
}

func TestGateway_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := NewGateway(NewHTTPSource(url, "", "", 200*time.Millisecond), nil, metrics.New(), Options{})
	_, err := gw.FetchAll(context.Background())
	assert.ErrorIs(t, err, port.ErrCatalogUnavailable)
}

type countingSource struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (s *countingSource) Products(ctx context.Context) ([]domain.Product, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Product{{ID: "p1", Name: "Mug", Price: 100, Stock: 3}}, nil
}

func TestGateway_BreakerOpens(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	gw := NewGateway(src, nil, metrics.New(), Options{BreakerFailures: 2, BreakerCooldown: time.Minute})

	for i := 0; i < 5; i++ {
		_, err := gw.FetchAll(context.Background())
		assert.ErrorIs(t, err, port.ErrCatalogUnavailable)
	}
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGateway_CollapsesConcurrentFetches(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	gw := NewGateway(src, nil, metrics.New(), Options{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.FetchAll(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, src.calls.Load(), int32(10))
}

type memoryCache struct {
	mu       sync.Mutex
	products []domain.Product
	ok       bool
}

func (c *memoryCache) GetCatalog(ctx context.Context) ([]domain.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products, c.ok, nil
}

func (c *memoryCache) SetCatalog(ctx context.Context, products []domain.Product, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products, c.ok = products, true
	return nil
}

func (c *memoryCache) ClaimDelivery(ctx context.Context, key, digest string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (c *memoryCache) ReleaseDelivery(ctx context.Context, key, digest string) error { return nil }

func TestGateway_CacheWindow(t *testing.T) {
	src := &countingSource{}
	m := metrics.New()
	gw := NewGateway(src, &memoryCache{}, m, Options{CacheTTL: time.Second})

	for i := 0; i < 3; i++ {
		products, err := gw.FetchAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, products, 1)
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CatalogFetches.WithLabelValues("cached")))
}

type stubMirror struct {
	port.MirrorRepository
	products []domain.Product
	lookups  *atomic.Int32
	err      error
}

func (s stubMirror) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products, s.err
}

func (s stubMirror) GetByExternalID(ctx context.Context, externalID string) (*domain.MirrorProduct, error) {
	if s.lookups != nil {
		s.lookups.Add(1)
	}
	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.products {
		if p.ID == externalID {
			return &domain.MirrorProduct{Product: p}, nil
		}
	}
	return nil, fmt.Errorf("mirror product %s: %w", externalID, port.ErrProductNotFound)
}

func TestMirrorSource(t *testing.T) {
	lookups := &atomic.Int32{}
	src := NewMirrorSource(stubMirror{
		products: []domain.Product{{ID: "7", Name: "Lamp", Price: 2550, Stock: 3}},
		lookups:  lookups,
	})
	m := metrics.New()
	gw := NewGateway(src, nil, m, Options{})

	p, err := gw.FetchOne(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int64(2550), p.Price)
	assert.Equal(t, int32(1), lookups.Load(), "single item read goes straight to the mirror")

	_, err = gw.FetchOne(context.Background(), "8")
	assert.ErrorIs(t, err, port.ErrProductNotFound)
	assert.NotErrorIs(t, err, port.ErrCatalogUnavailable)

	products, err := gw.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestMirrorSource_Unavailable(t *testing.T) {
	src := NewMirrorSource(stubMirror{err: errors.New("db down")})
	m := metrics.New()
	gw := NewGateway(src, nil, m, Options{})

	_, err := gw.FetchOne(context.Background(), "7")
	assert.ErrorIs(t, err, port.ErrCatalogUnavailable)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CatalogFetches.WithLabelValues("unavailable")))
}
