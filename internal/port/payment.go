package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type PaymentRequest struct {
	CartID   string
	UserID   string
	Amount   int64
	Currency string
	Address  domain.Address
}

type PaymentDecision struct {
	Approved bool
	Reason   string
}

type PaymentAuthorizer interface {
	Authorize(ctx context.Context, req PaymentRequest) (PaymentDecision, error)
}
