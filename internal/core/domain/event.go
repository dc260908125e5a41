package domain

import "time"

type EventType string

const (
	EventCheckoutAttempt EventType = "CHECKOUT_ATTEMPT"
	EventCheckoutSuccess EventType = "CHECKOUT_SUCCESS"
	EventCheckoutFailed  EventType = "CHECKOUT_FAILED"
	EventProductUpdated  EventType = "PRODUCT_UPDATED"
)

type EventItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// CheckoutEvent is published on the orders topic for every checkout lifecycle step.
type CheckoutEvent struct {
	Type       EventType      `json:"type"`
	Status     CheckoutStatus `json:"status"`
	CartID     string         `json:"cartId,omitempty"`
	UserID     string         `json:"userId"`
	OrderID    string         `json:"orderId,omitempty"`
	Items      []EventItem    `json:"items,omitempty"`
	Total      int64          `json:"total"`
	Currency   string         `json:"currency,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

type ProductUpdatedEvent struct {
	Type       EventType `json:"type"`
	Product    Product   `json:"product"`
	Inserted   bool      `json:"inserted"`
	OccurredAt time.Time `json:"occurredAt"`
}

// CartSnapshot is the fixed-schema binary event emitted after each cart mutation.
type CartSnapshot struct {
	CartID     string
	UserID     string
	Currency   string
	Items      []EventItem
	Subtotal   int64
	Total      int64
	CapturedAt time.Time
}

func EventItems(items []CartItem) []EventItem {
	out := make([]EventItem, 0, len(items))
	for _, it := range items {
		out = append(out, EventItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return out
}
