package domain

import "time"

type Cart struct {
	ID         string
	UserID     string
	Currency   string
	TotalPrice int64 // denormalized, never authoritative
	UpdatedAt  time.Time
	Items      []CartItem
}

// CartItem holds the name, SKU and unit price captured when the product was first added.
type CartItem struct {
	ID        string
	CartID    string
	ProductID string
	SKU       string
	Name      string
	UnitPrice int64
	Quantity  int
	AddedAt   time.Time
}

func (i CartItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Subtotal sums line totals.
func Subtotal(items []CartItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}

type LineView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

// CartView is the priced read model of a cart.
type CartView struct {
	CartID   string     `json:"cartId,omitempty"`
	UserID   string     `json:"userId,omitempty"`
	Currency string     `json:"currency,omitempty"`
	Items    []LineView `json:"items"`
	Subtotal int64      `json:"subtotal"`
	Shipping int64      `json:"shipping"`
	Discount int64      `json:"discount"`
	Total    int64      `json:"total"`
}
