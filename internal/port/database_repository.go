package port

import (
	"context"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

// ErrTxConflict reports a transaction aborted by the store because of lock
// contention (deadlock, lock wait timeout). The unit of work can be retried.
var ErrTxConflict = errors.New("transaction conflict")

type ProductRepository interface {
	// ListProducts returns products ordered by name; an empty category means all.
	ListProducts(ctx context.Context, category string) ([]domain.ProductSummary, error)

	// GetProduct returns nil, nil when the product does not exist
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	ListCategories(ctx context.Context) ([]string, error)

	// CreateProduct inserts a product, failing with *domain.ConflictError on a
	// case-insensitive name clash
	CreateProduct(ctx context.Context, p domain.NewProduct) (int64, error)
}

type OrderRepository interface {
	// GetOrder returns the order with its items, or nil, nil when absent
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	// ListOrders returns order headers newest first
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
}

// Transactor runs fn inside a single store transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error
}

type OrderTx interface {
	// LockProducts reads and locks the given product rows until the
	// transaction ends. Missing ids are absent from the result.
	LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)

	InsertOrder(ctx context.Context, order *domain.Order) (int64, error)

	InsertOrderItem(ctx context.Context, item domain.OrderItem) error

	// DecrementStock fails with domain.ErrInsufficientStock if stock would go negative
	DecrementStock(ctx context.Context, productID int64, quantity int) error
}
