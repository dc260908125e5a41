package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
)

var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrEmptyCart        = errors.New("empty cart")
	ErrInvalidSignature = errors.New("invalid signature")
)

// InsufficientStockError reports the real stock ceiling for a product. Cumulative
// is set when the rejected amount includes a quantity already in the cart.
type InsufficientStockError struct {
	ProductID  string
	Available  int
	Requested  int
	Cumulative bool
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Actionable() string {
	if e.Cumulative {
		return fmt.Sprintf("Max available: %d", e.Available)
	}
	return fmt.Sprintf("Only %d left in stock", e.Available)
}

// StockConflictError lists every cart line that exceeds current stock.
type StockConflictError struct {
	Problems []domain.StockProblem
}

func (e *StockConflictError) Error() string {
	ids := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		ids = append(ids, p.ItemID)
	}
	return "stock conflict: " + strings.Join(ids, ", ")
}

type UnknownItemsError struct {
	ProductIDs []string
}

func (e *UnknownItemsError) Error() string {
	return "unknown items: " + strings.Join(e.ProductIDs, ", ")
}

type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	if e.Reason == "" {
		return "payment declined"
	}
	return "payment declined: " + e.Reason
}

func stockProblem(item domain.CartItem, available int) domain.StockProblem {
	return domain.StockProblem{
		ItemID:     item.ProductID,
		Name:       item.Name,
		Requested:  item.Quantity,
		Available:  available,
		Actionable: fmt.Sprintf("Reduce quantity to %d or remove item", available),
	}
}
