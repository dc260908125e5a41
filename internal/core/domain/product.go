package domain

import "time"

// UnlimitedStock stands in for a provider "stock unlimited" flag so stock
// comparisons never need a special case.
const UnlimitedStock = 999

// Product is the catalog's view of a sellable item. Price is in minor currency units.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Category    string `json:"category,omitempty"`
}

// MirrorProduct is a catalog_mirror row.
type MirrorProduct struct {
	RowID int64
	Product
	UpdatedAt time.Time
}

// ProductIndex maps product ids to products.
type ProductIndex map[string]Product

func IndexProducts(products []Product) ProductIndex {
	idx := make(ProductIndex, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx
}
