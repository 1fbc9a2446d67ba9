package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
)

var _ StorefrontServer = (*GRPCHandler)(nil)

type GRPCHandler struct {
	catalog Catalog
	orders  Orders
	logger  *zap.Logger
}

func NewGRPCHandler(catalog Catalog, orders Orders, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{catalog: catalog, orders: orders, logger: logger}
}

func (h *GRPCHandler) GetProduct(ctx context.Context, req *GetProductRequest) (*ProductResponse, error) {
	product, err := h.catalog.GetProduct(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toProduct(product)
	return &resp, nil
}

func (h *GRPCHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	products, err := h.catalog.ListProducts(ctx, req.Category)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &ListProductsResponse{Products: toProductSummaries(products)}, nil
}

func (h *GRPCHandler) ListCategories(ctx context.Context, _ *ListCategoriesRequest) (*ListCategoriesResponse, error) {
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &ListCategoriesResponse{Categories: categories}, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	order, err := h.orders.Commit(ctx, req.toDomain())
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &CreateOrderResponse{
		Success: true,
		Message: "order created",
		OrderID: order.ID,
		Total:   domain.FormatMoney(order.Total),
	}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	order, err := h.orders.GetOrder(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toOrder(order)
	return &resp, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	code := grpcCode(domain.KindOf(err))
	if code == codes.Internal {
		h.logger.Error("rpc failed", zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func grpcCode(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		return codes.AlreadyExists
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	case domain.KindTransientStore, domain.KindCacheUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
