package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID            int64
	CustomerName  string
	CustomerEmail string
	Total         decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
	Items         []OrderItem
}

// OrderItem holds the unit price as it was when the order was committed.
type OrderItem struct {
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

func NewOrderItem(p Product, quantity int) OrderItem {
	return OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    quantity,
		UnitPrice:   p.Price,
		Subtotal:    p.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// ItemsTotal sums the line subtotals at currency precision.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	return RoundMoney(total)
}
