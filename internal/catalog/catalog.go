package catalog

import (
	"context"
	"errors"
)

// Availability is the authoritative price/stock snapshot for one purchasable
// configuration.
type Availability struct {
	UnitPrice float64
	Stock     int
}

// Catalog answers whether a product (or variant) exists and at what price and
// stock level. The cart service re-derives unit prices from here; client-sent
// prices are never trusted.
type Catalog interface {
	Lookup(ctx context.Context, productID, variantID string) (Availability, error)
}

var ErrProductNotFound = errors.New("product not found")
