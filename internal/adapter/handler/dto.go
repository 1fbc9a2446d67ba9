package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

type ProductSummaryResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	Brand    string `json:"brand"`
}

type ProductResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       string  `json:"price"`
	Stock       int     `json:"stock"`
	Brand       string  `json:"brand"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Brand       string          `json:"brand"`
	Description *string         `json:"description,omitempty"`
	ImageURL    *string         `json:"image_url,omitempty"`
}

type CreateProductResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ProductID int64  `json:"product_id"`
}

type CartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	Items         []CartItemRequest `json:"items"`
}

type CreateOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID int64  `json:"order_id"`
	Total   string `json:"total"`
}

type OrderItemResponse struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

type OrderResponse struct {
	ID            int64               `json:"id"`
	CustomerName  string              `json:"customer_name"`
	CustomerEmail string              `json:"customer_email"`
	Total         string              `json:"total"`
	Status        string              `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []OrderItemResponse `json:"items,omitempty"`
}

type CacheClearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (r CreateProductRequest) toDomain() domain.NewProduct {
	return domain.NewProduct{
		Name:        r.Name,
		Category:    r.Category,
		Price:       r.Price,
		Stock:       r.Stock,
		Brand:       r.Brand,
		Description: r.Description,
		ImageURL:    r.ImageURL,
	}
}

func (r CreateOrderRequest) toDomain() domain.Cart {
	items := make([]domain.CartItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return domain.Cart{
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		Items:         items,
	}
}

func toProductSummaries(products []domain.ProductSummary) []ProductSummaryResponse {
	out := make([]ProductSummaryResponse, 0, len(products))
	for _, p := range products {
		out = append(out, ProductSummaryResponse{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Price:    domain.FormatMoney(p.Price),
			Stock:    p.Stock,
			Brand:    p.Brand,
		})
	}
	return out
}

func toProduct(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Price:       domain.FormatMoney(p.Price),
		Stock:       p.Stock,
		Brand:       p.Brand,
		Description: p.Description,
		ImageURL:    p.ImageURL,
	}
}

func toOrder(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Total:         domain.FormatMoney(o.Total),
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   domain.FormatMoney(item.UnitPrice),
			Subtotal:    domain.FormatMoney(item.Subtotal),
		})
	}
	return resp
}

func toOrders(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrder(&orders[i]))
	}
	return out
}
