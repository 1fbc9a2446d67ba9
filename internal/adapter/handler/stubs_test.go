package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type catalogStub struct {
	products   []domain.ProductSummary
	product    *domain.Product
	categories []string
	createdID  int64
	err        error

	gotCategory string
	gotProduct  domain.NewProduct
}

func (s *catalogStub) ListProducts(ctx context.Context, category string) ([]domain.ProductSummary, error) {
	s.gotCategory = category
	return s.products, s.err
}

func (s *catalogStub) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.product == nil || s.product.ID != id {
		return nil, &domain.NotFoundError{Entity: "product", ID: id}
	}
	return s.product, nil
}

func (s *catalogStub) ListCategories(ctx context.Context) ([]string, error) {
	return s.categories, s.err
}

func (s *catalogStub) RegisterProduct(ctx context.Context, p domain.NewProduct) (int64, error) {
	s.gotProduct = p
	return s.createdID, s.err
}

type ordersStub struct {
	order  *domain.Order
	orders []domain.Order
	err    error

	gotCart  domain.Cart
	gotLimit int
}

func (s *ordersStub) Commit(ctx context.Context, cart domain.Cart) (*domain.Order, error) {
	s.gotCart = cart
	return s.order, s.err
}

func (s *ordersStub) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.order == nil || s.order.ID != id {
		return nil, &domain.NotFoundError{Entity: "order", ID: id}
	}
	return s.order, nil
}

func (s *ordersStub) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	s.gotLimit = limit
	return s.orders, s.err
}

type cacheStub struct {
	status  service.CacheStatus
	cleared int
	err     error
}

func (s *cacheStub) Status(ctx context.Context) service.CacheStatus {
	return s.status
}

func (s *cacheStub) Clear(ctx context.Context) (int, error) {
	return s.cleared, s.err
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:            7,
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Total:         money("20"),
		Status:        domain.OrderStatusPending,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Items: []domain.OrderItem{{
			OrderID:     7,
			ProductID:   1,
			ProductName: "Keyboard",
			Quantity:    2,
			UnitPrice:   money("10"),
			Subtotal:    money("20"),
		}},
	}
}
