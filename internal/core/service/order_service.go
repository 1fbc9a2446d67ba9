package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	DefaultOrderListLimit = 50
	MaxOrderListLimit     = 500
)

type OrderConfig struct {
	StoreTimeout time.Duration
	// CommitAttempts is how many times a commit aborted by lock contention
	// is run in total.
	CommitAttempts int
}

type OrderService struct {
	tx     port.Transactor
	orders port.OrderRepository
	cache  *CacheAside
	cfg    OrderConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewOrderService(tx port.Transactor, orders port.OrderRepository, cache *CacheAside, cfg OrderConfig, logger *zap.Logger) *OrderService {
	if cfg.CommitAttempts < 1 {
		cfg.CommitAttempts = 1
	}
	return &OrderService{
		tx:     tx,
		orders: orders,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Commit validates the cart, then prices it and decrements stock in one
// transaction. Either the order with all its items is recorded and every
// product's stock is reduced, or nothing changes.
func (s *OrderService) Commit(ctx context.Context, cart domain.Cart) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "order.commit")
	defer span.End()

	cart = cart.Normalize()
	if err := cart.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("order.lines", len(cart.Items)))

	var (
		order      *domain.Order
		categories []string
		err        error
	)
	for attempt := 1; attempt <= s.cfg.CommitAttempts; attempt++ {
		order, categories, err = s.commitOnce(ctx, cart)
		if !errors.Is(err, port.ErrTxConflict) {
			break
		}
		s.logger.Warn("order commit aborted by lock contention",
			zap.Int("attempt", attempt), zap.Error(err))
	}
	if errors.Is(err, port.ErrTxConflict) {
		err = fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
	}
	if err != nil {
		s.logRejection(cart, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	products := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		products = append(products, item.ProductID)
	}
	// ctx may be cancelled by now; the order is committed either way
	s.cache.Invalidate(ctx, Scope{ProductIDs: products, Categories: categories})

	span.SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.total", domain.FormatMoney(order.Total)),
	)
	s.logger.Info("order committed",
		zap.Int64("order_id", order.ID),
		zap.String("total", domain.FormatMoney(order.Total)),
		zap.Int("lines", len(order.Items)),
	)

	return order, nil
}

// commitOnce runs one transaction attempt and returns the recorded order
// with the categories of the products it touched.
func (s *OrderService) commitOnce(ctx context.Context, cart domain.Cart) (*domain.Order, []string, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var (
		order      *domain.Order
		categories []string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx port.OrderTx) error {
		products, err := tx.LockProducts(ctx, cart.ProductIDs())
		if err != nil {
			return err
		}

		priced, err := priceCart(cart, products, s.now())
		if err != nil {
			return err
		}

		id, err := tx.InsertOrder(ctx, priced)
		if err != nil {
			return err
		}
		priced.ID = id

		for i := range priced.Items {
			priced.Items[i].OrderID = id
			if err := tx.InsertOrderItem(ctx, priced.Items[i]); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, priced.Items[i].ProductID, priced.Items[i].Quantity); err != nil {
				return err
			}
		}

		order = priced
		categories = make([]string, 0, len(products))
		for _, p := range products {
			categories = append(categories, p.Category)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return order, categories, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &domain.NotFoundError{Entity: "order", ID: id}
	}

	return order, nil
}

// ListOrders returns the newest orders. A non-positive limit means the
// default; larger limits are capped.
func (s *OrderService) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	switch {
	case limit <= 0:
		limit = DefaultOrderListLimit
	case limit > MaxOrderListLimit:
		limit = MaxOrderListLimit
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	return s.orders.ListOrders(ctx, limit)
}

func (s *OrderService) logRejection(cart domain.Cart, err error) {
	fields := []zap.Field{
		zap.String("kind", string(domain.KindOf(err))),
		zap.Int("lines", len(cart.Items)),
		zap.Error(err),
	}
	switch domain.KindOf(err) {
	case domain.KindTransientStore, domain.KindInternal:
		s.logger.Error("order commit failed", fields...)
	default:
		s.logger.Info("order rejected", fields...)
	}
}
