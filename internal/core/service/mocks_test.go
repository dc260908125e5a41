package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Mock Catalog
type mockCatalog struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	unavailable bool
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	m := &mockCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockCatalog) setStock(id string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Stock = stock
	m.products[id] = p
}

func (m *mockCatalog) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

func (m *mockCatalog) setUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = v
}

func (m *mockCatalog) FetchAll(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, port.ErrCatalogUnavailable
	}
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockCatalog) FetchOne(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, port.ErrCatalogUnavailable
	}
	p, ok := m.products[id]
	if !ok {
		return nil, port.ErrProductNotFound
	}
	return &p, nil
}

// Mock CartRepository. WithCart works on a copy and commits it only when fn succeeds.
type mockCartRepo struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	seq     int
	failTx  error
	txCount int
	locked  atomic.Bool
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*domain.Cart)}
}

func (m *mockCartRepo) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, port.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *mockCartRepo) GetCartByID(ctx context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.ID == cartID {
			return copyCart(c), nil
		}
	}
	return nil, port.ErrCartNotFound
}

func (m *mockCartRepo) WithCart(ctx context.Context, userID string, create bool, fn func(tx port.CartTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	if m.failTx != nil {
		return m.failTx
	}

	c, ok := m.carts[userID]
	if !ok {
		if !create {
			return port.ErrCartNotFound
		}
		m.seq++
		c = &domain.Cart{ID: fmt.Sprintf("cart-%d", m.seq), UserID: userID, Currency: "EUR"}
	}

	m.locked.Store(true)
	defer m.locked.Store(false)

	tx := &mockCartTx{cart: copyCart(c)}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.deleted {
		delete(m.carts, userID)
		return nil
	}
	tx.cart.TotalPrice = domain.Subtotal(tx.cart.Items)
	m.carts[userID] = tx.cart
	return nil
}

func (m *mockCartRepo) Ping(ctx context.Context) error { return nil }

func (m *mockCartRepo) items(userID string) []domain.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil
	}
	return copyCart(c).Items
}

func (m *mockCartRepo) put(userID string, items ...domain.CartItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.carts[userID] = &domain.Cart{ID: fmt.Sprintf("cart-%d", m.seq), UserID: userID, Currency: "EUR", Items: items}
}

type mockCartTx struct {
	cart    *domain.Cart
	deleted bool
}

func (t *mockCartTx) Cart() domain.Cart {
	c := *t.cart
	c.Items = nil
	return c
}

func (t *mockCartTx) Items(ctx context.Context) ([]domain.CartItem, error) {
	return append([]domain.CartItem(nil), t.cart.Items...), nil
}

func (t *mockCartTx) Item(ctx context.Context, productID string) (*domain.CartItem, error) {
	for _, it := range t.cart.Items {
		if it.ProductID == productID {
			item := it
			return &item, nil
		}
	}
	return nil, nil
}

func (t *mockCartTx) PutItem(ctx context.Context, item domain.CartItem) error {
	item.CartID = t.cart.ID
	for i, it := range t.cart.Items {
		if it.ProductID == item.ProductID {
			t.cart.Items[i] = item
			return nil
		}
	}
	t.cart.Items = append(t.cart.Items, item)
	sort.SliceStable(t.cart.Items, func(i, j int) bool { return t.cart.Items[i].AddedAt.Before(t.cart.Items[j].AddedAt) })
	return nil
}

func (t *mockCartTx) DeleteItem(ctx context.Context, productID string) error {
	kept := t.cart.Items[:0]
	for _, it := range t.cart.Items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	t.cart.Items = kept
	return nil
}

func (t *mockCartTx) ClearItems(ctx context.Context) error {
	t.cart.Items = nil
	return nil
}

func (t *mockCartTx) DeleteCart(ctx context.Context) error {
	t.deleted = true
	return nil
}

func copyCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp
}

// Mock EventPublisher
type published struct {
	topic   string
	key     string
	payload any
}

type mockPublisher struct {
	mu        sync.Mutex
	events    []published
	snapshots []domain.CartSnapshot

	// lockHeld, when set, reports whether a cart transaction is open.
	lockHeld      func() bool
	publishedHeld int
}

func (m *mockPublisher) Publish(ctx context.Context, topic, key string, payload any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockHeld != nil && m.lockHeld() {
		m.publishedHeld++
	}
	m.events = append(m.events, published{topic: topic, key: key, payload: payload})
	return fmt.Sprintf("msg-%d", len(m.events))
}

func (m *mockPublisher) EnqueueCartSnapshot(snapshot domain.CartSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
}

func (m *mockPublisher) checkoutTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []domain.EventType
	for _, e := range m.events {
		if ev, ok := e.payload.(domain.CheckoutEvent); ok {
			types = append(types, ev.Type)
		}
	}
	return types
}

func (m *mockPublisher) checkoutStatuses() []domain.CheckoutStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var statuses []domain.CheckoutStatus
	for _, e := range m.events {
		if ev, ok := e.payload.(domain.CheckoutEvent); ok {
			statuses = append(statuses, ev.Status)
		}
	}
	return statuses
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Mock PaymentAuthorizer
type mockPayments struct {
	decision port.PaymentDecision
	err      error
	calls    int
}

func (m *mockPayments) Authorize(ctx context.Context, req port.PaymentRequest) (port.PaymentDecision, error) {
	m.calls++
	return m.decision, m.err
}

// Mock MirrorRepository
type mockMirror struct {
	mu   sync.Mutex
	rows map[string]domain.MirrorProduct
	err  error
}

func newMockMirror() *mockMirror {
	return &mockMirror{rows: make(map[string]domain.MirrorProduct)}
}

func (m *mockMirror) UpsertProduct(ctx context.Context, product domain.Product) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, exists := m.rows[product.ID]
	m.rows[product.ID] = domain.MirrorProduct{Product: product, UpdatedAt: time.Now()}
	return !exists, nil
}

func (m *mockMirror) GetByExternalID(ctx context.Context, externalID string) (*domain.MirrorProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[externalID]
	if !ok {
		return nil, port.ErrProductNotFound
	}
	return &row, nil
}

func (m *mockMirror) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Product, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Product)
	}
	return out, nil
}

// Mock CacheRepository
type mockCache struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{keys: make(map[string]string)}
}

func (m *mockCache) GetCatalog(ctx context.Context) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (m *mockCache) SetCatalog(ctx context.Context, products []domain.Product, ttl time.Duration) error {
	return nil
}

func (m *mockCache) ClaimDelivery(ctx context.Context, key, digest string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] == digest {
		return false, nil
	}
	m.keys[key] = digest
	return true, nil
}

func (m *mockCache) ReleaseDelivery(ctx context.Context, key, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] == digest {
		delete(m.keys, key)
	}
	return nil
}
