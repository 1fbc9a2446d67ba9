package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// priceCart checks the cart against locked product rows in cart order and
// builds the pending order. Quantities of repeated lines for one product are
// checked together against its stock.
func priceCart(cart domain.Cart, products map[int64]domain.Product, now time.Time) (*domain.Order, error) {
	requested := make(map[int64]int, len(products))
	items := make([]domain.OrderItem, 0, len(cart.Items))
	total := decimal.Zero

	for _, line := range cart.Items {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, &domain.NotFoundError{Entity: "product", ID: line.ProductID}
		}

		already := requested[p.ID]
		if already+line.Quantity > p.Stock {
			return nil, &domain.InsufficientStockError{
				ProductID: p.ID,
				Available: p.Stock - already,
				Requested: line.Quantity,
			}
		}
		requested[p.ID] = already + line.Quantity

		item := domain.NewOrderItem(p, line.Quantity)
		total = total.Add(item.Subtotal)
		if total.GreaterThan(domain.MaxOrderTotal) {
			return nil, &domain.ValidationError{
				Field:  "items",
				Reason: "order total exceeds " + domain.FormatMoney(domain.MaxOrderTotal),
			}
		}
		items = append(items, item)
	}

	return &domain.Order{
		CustomerName:  cart.CustomerName,
		CustomerEmail: cart.CustomerEmail,
		Total:         domain.RoundMoney(total),
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		Items:         items,
	}, nil
}
