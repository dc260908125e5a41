package payment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/port"
)

// StaticAuthorizer returns the same decision for every checkout. It stands in
// for a real payment provider.
type StaticAuthorizer struct {
	approve bool
}

func NewStaticAuthorizer(mode string) (*StaticAuthorizer, error) {
	switch mode {
	case "approve":
		return &StaticAuthorizer{approve: true}, nil
	case "decline":
		return &StaticAuthorizer{approve: false}, nil
	}
	return nil, fmt.Errorf("unknown payment mode %q", mode)
}

func (a *StaticAuthorizer) Authorize(ctx context.Context, req port.PaymentRequest) (port.PaymentDecision, error) {
	if err := ctx.Err(); err != nil {
		return port.PaymentDecision{}, err
	}

	log.Debug().Str("cart_id", req.CartID).Int64("amount", req.Amount).Bool("approved", a.approve).Msg("payment authorized")
	if !a.approve {
		return port.PaymentDecision{Approved: false, Reason: "payment declined by provider"}, nil
	}
	return port.PaymentDecision{Approved: true}, nil
}
