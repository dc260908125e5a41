package domain

import (
	"strings"
	"time"
)

type CheckoutStatus string

const (
	CheckoutStatusValidating         CheckoutStatus = "VALIDATING"
	CheckoutStatusStockConflict      CheckoutStatus = "STOCK_CONFLICT"
	CheckoutStatusCatalogUnavailable CheckoutStatus = "CATALOG_UNAVAILABLE"
	CheckoutStatusConfirmed          CheckoutStatus = "CONFIRMED"
	CheckoutStatusFailed             CheckoutStatus = "FAILED"
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

func (a *Address) Valid() bool {
	return a != nil && strings.TrimSpace(a.Line1) != ""
}

// StockProblem describes one cart line that asks for more than the catalog holds.
type StockProblem struct {
	ItemID     string `json:"itemId"`
	Name       string `json:"name"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
	Actionable string `json:"actionable"`
}

type Order struct {
	ID          string
	CartID      string
	UserID      string
	Items       []CartItem
	Total       int64
	Currency    string
	Address     Address
	Status      CheckoutStatus
	ConfirmedAt time.Time
}
