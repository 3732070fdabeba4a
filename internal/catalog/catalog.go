package catalog

import "context"

// Product is the subset of a catalog product the cart cares about.
// The catalog reports availability under one of several field names.
type Product struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Quantity           *int   `json:"quantity,omitempty"`
	StockQuantity      *int   `json:"stock_quantity,omitempty"`
	StockQuantityCamel *int   `json:"stockQuantity,omitempty"`
}

// Stock returns the product's available quantity and whether the catalog reported one.
func (p *Product) Stock() (int, bool) {
	switch {
	case p.Quantity != nil:
		return *p.Quantity, true
	case p.StockQuantity != nil:
		return *p.StockQuantity, true
	case p.StockQuantityCamel != nil:
		return *p.StockQuantityCamel, true
	default:
		return 0, false
	}
}

// Lookup fetches products from the catalog.
type Lookup interface {
	GetProductByID(ctx context.Context, id string) (*Product, error)
}
