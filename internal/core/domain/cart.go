package domain

import (
	"fmt"
	"strings"
)

type Cart struct {
	CustomerName  string
	CustomerEmail string
	Items         []CartItem
}

type CartItem struct {
	ProductID int64
	Quantity  int
}

func (c Cart) Normalize() Cart {
	c.CustomerName = strings.TrimSpace(c.CustomerName)
	c.CustomerEmail = strings.TrimSpace(c.CustomerEmail)
	return c
}

// Validate checks the cart shape only; stock and existence are checked
// against the store when the order is committed.
func (c Cart) Validate() error {
	if len(c.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "cart is empty"}
	}
	if strings.TrimSpace(c.CustomerName) == "" {
		return &ValidationError{Field: "customer_name", Reason: "is required"}
	}
	if strings.TrimSpace(c.CustomerEmail) == "" {
		return &ValidationError{Field: "customer_email", Reason: "is required"}
	}
	for i, item := range c.Items {
		if item.Quantity <= 0 {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: "must be greater than 0",
			}
		}
	}
	return nil
}

// ProductIDs returns the distinct product ids of the cart in first-seen order.
func (c Cart) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(c.Items))
	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
