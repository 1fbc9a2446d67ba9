package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory product and order store. Transactions hold a
// single lock and work on a copy that replaces the state on commit, so
// concurrent transactions are serializable.
type memStore struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	orders   []domain.Order
	nextID   int64

	// failOn makes the named transaction step fail with errStoreDown
	failOn string
	// conflicts is how many upcoming transactions abort with ErrTxConflict
	conflicts int
	// afterCommit runs once a transaction has been committed
	afterCommit func()

	txCount     int
	productGets int
}

func newMemStore(products ...domain.Product) *memStore {
	m := &memStore{products: make(map[int64]domain.Product), nextID: 1}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func product(id int64, name, category, price string, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Brand:    "Acme",
	}
}

func (m *memStore) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) setPrice(id int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Price = decimal.RequireFromString(price)
	m.products[id] = p
}

func (m *memStore) ListProducts(ctx context.Context, category string) ([]domain.ProductSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "read" {
		return nil, errStoreDown
	}

	out := make([]domain.ProductSummary, 0)
	for _, p := range m.products {
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, domain.ProductSummary{
			ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price, Stock: p.Stock, Brand: p.Brand,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productGets++
	if m.failOn == "read" {
		return nil, errStoreDown
	}

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) ListCategories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	for _, p := range m.products {
		seen[p.Category] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (m *memStore) CreateProduct(ctx context.Context, np domain.NewProduct) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if strings.EqualFold(p.Name, np.Name) {
			return 0, &domain.ConflictError{Field: "name", Value: np.Name}
		}
	}
	id := int64(len(m.products) + 1000)
	m.products[id] = domain.Product{
		ID: id, Name: np.Name, Category: np.Category, Price: np.Price, Stock: np.Stock,
		Brand: np.Brand, Description: np.Description, ImageURL: np.ImageURL,
	}
	return id, nil
}

func (m *memStore) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Clone(m.orders)
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.OrderTx) error) error {
	m.mu.Lock()
	m.txCount++
	if m.conflicts > 0 {
		m.conflicts--
		m.mu.Unlock()
		return fmt.Errorf("lock products: %w", port.ErrTxConflict)
	}

	tx := &memTx{
		store:    m,
		products: maps.Clone(m.products),
		orders:   slices.Clone(m.orders),
		nextID:   m.nextID,
	}
	err := fn(ctx, tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.products, m.orders, m.nextID = tx.products, tx.orders, tx.nextID
	hook := m.afterCommit
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// memTx runs with memStore.mu held.
type memTx struct {
	store    *memStore
	products map[int64]domain.Product
	orders   []domain.Order
	nextID   int64
}

func (t *memTx) fail(step string) error {
	if t.store.failOn == step {
		return fmt.Errorf("%s: %w", step, errStoreDown)
	}
	return nil
}

func (t *memTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if err := t.fail("lock"); err != nil {
		return nil, err
	}
	out := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *domain.Order) (int64, error) {
	if err := t.fail("insert_order"); err != nil {
		return 0, err
	}
	id := t.nextID
	t.nextID++
	stored := *order
	stored.ID = id
	stored.Items = nil
	t.orders = append(t.orders, stored)
	return id, nil
}

func (t *memTx) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	if err := t.fail("insert_item"); err != nil {
		return err
	}
	for i := range t.orders {
		if t.orders[i].ID == item.OrderID {
			t.orders[i].Items = append(t.orders[i].Items, item)
			return nil
		}
	}
	return fmt.Errorf("order %d not inserted", item.OrderID)
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := t.fail("decrement"); err != nil {
		return err
	}
	p := t.products[productID]
	if p.Stock < quantity {
		return fmt.Errorf("decrement product %d: %w", productID, domain.ErrInsufficientStock)
	}
	p.Stock -= quantity
	t.products[productID] = p
	return nil
}

// memCache is a port.CacheStore that can be switched to failing.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failing bool
	sets    int

	// beforeSet runs ahead of every write, outside the lock.
	beforeSet func(key string)
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) setFailing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = v
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return nil, errors.New("connection refused")
	}
	v, ok := c.entries[key]
	if !ok {
		return nil, port.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.beforeSet != nil {
		c.beforeSet(key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("connection refused")
	}
	c.sets++
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("connection refused")
	}
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, errors.New("connection refused")
	}
	n := 0
	for k := range c.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

func (c *memCache) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("connection refused")
	}
	return nil
}

func (c *memCache) Info(ctx context.Context) (map[string]string, error) {
	return map[string]string{"redis_version": "7.2.0", "used_memory_human": "1.00M", "connected_clients": "1"}, nil
}
