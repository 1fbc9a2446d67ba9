package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CatalogService struct {
	products     port.ProductRepository
	cache        *CacheAside
	storeTimeout time.Duration
	logger       *zap.Logger
}

func NewCatalogService(products port.ProductRepository, cache *CacheAside, storeTimeout time.Duration, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		products:     products,
		cache:        cache,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// ListProducts lists products by name, restricted to one category when
// category is not blank.
func (s *CatalogService) ListProducts(ctx context.Context, category string) ([]domain.ProductSummary, error) {
	category = NormalizeCategory(category)

	return GetOrLoad(ctx, s.cache, ProductListKey(category), func(ctx context.Context) ([]domain.ProductSummary, error) {
		ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		defer cancel()
		return s.products.ListProducts(ctx, category)
	})
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := GetOrLoad(ctx, s.cache, ProductKey(id), func(ctx context.Context) (domain.Product, error) {
		ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		defer cancel()

		p, err := s.products.GetProduct(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		if p == nil {
			return domain.Product{}, &domain.NotFoundError{Entity: "product", ID: id}
		}
		return *p, nil
	})
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]string, error) {
	return GetOrLoad(ctx, s.cache, CategoriesKey(), func(ctx context.Context) ([]string, error) {
		ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		defer cancel()
		return s.products.ListCategories(ctx)
	})
}

// RegisterProduct creates a product and invalidates the listings it appears in.
func (s *CatalogService) RegisterProduct(ctx context.Context, np domain.NewProduct) (int64, error) {
	ctx, span := tracer.Start(ctx, "catalog.register_product")
	defer span.End()

	np = np.Normalize()
	if err := np.Validate(); err != nil {
		return 0, err
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	id, err := s.products.CreateProduct(storeCtx, np)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("product.id", id))

	s.cache.Invalidate(ctx, Scope{ProductIDs: []int64{id}, Categories: []string{np.Category}})
	s.logger.Info("product registered",
		zap.Int64("product_id", id),
		zap.String("name", np.Name),
		zap.String("category", np.Category),
	)

	return id, nil
}
