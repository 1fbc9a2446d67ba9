package service

import (
	"strconv"
	"strings"
)

const (
	allProductsKey       = "products:all"
	categoryProductsKey  = "products:category:"
	productKeyPrefix     = "product:"
	categoriesKey        = "categories:all"
	productListPattern   = "products:*"
	productDetailPattern = "product:*"
	categoriesPattern    = "categories:*"
)

// NormalizeCategory trims the filter. Case is kept because the category
// filter matches stored values exactly.
func NormalizeCategory(category string) string {
	return strings.TrimSpace(category)
}

// ProductListKey returns the cache key of a product listing. An empty
// filter is the all-products listing; every other filter gets its own key.
func ProductListKey(category string) string {
	category = NormalizeCategory(category)
	if category == "" {
		return allProductsKey
	}
	return categoryProductsKey + category
}

func ProductKey(id int64) string {
	return productKeyPrefix + strconv.FormatInt(id, 10)
}

func CategoriesKey() string {
	return categoriesKey
}
