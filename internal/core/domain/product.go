package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Brand       string          `json:"brand"`
	Description *string         `json:"description,omitempty"`
	ImageURL    *string         `json:"image_url,omitempty"`
}

// ProductSummary is the listing projection of a product.
type ProductSummary struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Brand    string          `json:"brand"`
}

// Bounds of the products table columns.
const MaxStock = math.MaxInt32

var MaxPrice = decimal.RequireFromString("99999999.99")

// NewProduct is the input of product registration.
type NewProduct struct {
	Name        string
	Category    string
	Price       decimal.Decimal
	Stock       int
	Brand       string
	Description *string
	ImageURL    *string
}

func (p NewProduct) Normalize() NewProduct {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Brand = strings.TrimSpace(p.Brand)
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		p.Description = &d
	}
	return p
}

// Validate expects a normalized product.
func (p NewProduct) Validate() error {
	switch {
	case p.Name == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case p.Category == "":
		return &ValidationError{Field: "category", Reason: "is required"}
	case p.Brand == "":
		return &ValidationError{Field: "brand", Reason: "is required"}
	case !p.Price.IsPositive():
		return &ValidationError{Field: "price", Reason: "must be greater than 0"}
	case !p.Price.Equal(RoundMoney(p.Price)):
		return &ValidationError{Field: "price", Reason: "must have at most 2 decimal places"}
	case p.Price.GreaterThan(MaxPrice):
		return &ValidationError{Field: "price", Reason: "must not exceed " + FormatMoney(MaxPrice)}
	case p.Stock < 0:
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	case p.Stock > MaxStock:
		return &ValidationError{Field: "stock", Reason: "must not exceed 2147483647"}
	}
	return nil
}
