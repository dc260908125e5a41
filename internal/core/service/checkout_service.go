package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CheckoutService struct {
	carts      port.CartRepository
	catalog    port.Catalog
	events     port.EventPublisher
	payments   port.PaymentAuthorizer
	pricing    domain.PricingRules
	topic      string
	deleteCart bool
}

func NewCheckoutService(carts port.CartRepository, catalog port.Catalog, events port.EventPublisher, payments port.PaymentAuthorizer, pricing domain.PricingRules, topic string, deleteCart bool) *CheckoutService {
	return &CheckoutService{
		carts:      carts,
		catalog:    catalog,
		events:     events,
		payments:   payments,
		pricing:    pricing,
		topic:      topic,
		deleteCart: deleteCart,
	}
}

// Checkout validates the user's cart against the live catalog, resolves payment
// and clears the cart in a single transaction holding the cart lock. Nothing is
// written unless payment is approved. Checkout events are published once the
// lock is released.
func (s *CheckoutService) Checkout(ctx context.Context, userID string, address *domain.Address) (*domain.Order, error) {
	if !address.Valid() {
		return nil, ErrInvalidAddress
	}

	peek, err := s.carts.GetCart(ctx, userID)
	if errors.Is(err, port.ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, s.fail(ctx, userID, "", nil, fmt.Errorf("get cart: %w", err))
	}
	if len(peek.Items) == 0 {
		return nil, ErrEmptyCart
	}

	products, err := s.catalog.FetchAll(ctx)
	if err != nil {
		err = fmt.Errorf("fetch catalog: %w", err)
		log.Warn().Err(err).Str("user_id", userID).Str("status", string(checkoutStatus(err))).Msg("checkout rejected")
		return nil, err
	}
	index := domain.IndexProducts(products)

	var (
		attempt  *domain.Cart
		total    int64
		order    *domain.Order
		declined *PaymentDeclinedError
	)
	err = s.carts.WithCart(ctx, userID, false, func(tx port.CartTx) error {
		items, err := tx.Items(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		if err := checkStock(items, index); err != nil {
			return err
		}

		cart := tx.Cart()
		cart.Items = items
		view := s.pricing.Price(&cart)
		attempt, total = &cart, view.Total

		decision, err := s.payments.Authorize(ctx, port.PaymentRequest{
			CartID:   cart.ID,
			UserID:   userID,
			Amount:   view.Total,
			Currency: cart.Currency,
			Address:  *address,
		})
		if err != nil {
			return fmt.Errorf("authorize payment: %w", err)
		}
		if !decision.Approved {
			declined = &PaymentDeclinedError{Reason: decision.Reason}
			return declined
		}

		if err := tx.ClearItems(ctx); err != nil {
			return err
		}
		if s.deleteCart {
			if err := tx.DeleteCart(ctx); err != nil {
				return err
			}
		}

		order = &domain.Order{
			ID:          uuid.NewString(),
			CartID:      cart.ID,
			UserID:      userID,
			Items:       items,
			Total:       view.Total,
			Currency:    cart.Currency,
			Address:     *address,
			Status:      checkoutStatus(nil),
			ConfirmedAt: time.Now().UTC(),
		}
		return nil
	})

	if attempt != nil {
		s.emit(ctx, domain.EventCheckoutAttempt, domain.CheckoutStatusValidating, attempt, "", total, "")
	}

	switch {
	case err == nil:
	case errors.Is(err, port.ErrCartNotFound), errors.Is(err, ErrEmptyCart):
		return nil, ErrEmptyCart
	case declined != nil:
		s.emit(ctx, domain.EventCheckoutFailed, domain.CheckoutStatusFailed, attempt, "", total, declined.Reason)
		return nil, err
	case isCheckoutRejection(err):
		log.Info().Err(err).Str("user_id", userID).Str("status", string(checkoutStatus(err))).Msg("checkout rejected")
		return nil, err
	default:
		return nil, s.fail(ctx, userID, peek.ID, peek.Items, fmt.Errorf("checkout: %w", err))
	}

	cart := domain.Cart{ID: order.CartID, UserID: userID, Currency: order.Currency, Items: order.Items}
	s.emit(ctx, domain.EventCheckoutSuccess, order.Status, &cart, order.ID, order.Total, "")
	s.events.EnqueueCartSnapshot(domain.CartSnapshot{
		CartID:     order.CartID,
		UserID:     userID,
		Currency:   order.Currency,
		Items:      []domain.EventItem{},
		CapturedAt: time.Now().UTC(),
	})

	log.Info().Str("order_id", order.ID).Str("cart_id", order.CartID).Int64("total", order.Total).Msg("checkout confirmed")
	return order, nil
}

func checkStock(items []domain.CartItem, index domain.ProductIndex) error {
	var missing []string
	var problems []domain.StockProblem
	for _, item := range items {
		product, ok := index[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		if item.Quantity > product.Stock {
			problems = append(problems, stockProblem(item, product.Stock))
		}
	}
	if len(missing) > 0 {
		return &UnknownItemsError{ProductIDs: missing}
	}
	if len(problems) > 0 {
		return &StockConflictError{Problems: problems}
	}
	return nil
}

func isCheckoutRejection(err error) bool {
	var unknown *UnknownItemsError
	var conflict *StockConflictError
	return errors.As(err, &unknown) || errors.As(err, &conflict)
}

// checkoutStatus maps the outcome of a checkout to its terminal state.
func checkoutStatus(err error) domain.CheckoutStatus {
	switch {
	case err == nil:
		return domain.CheckoutStatusConfirmed
	case errors.Is(err, port.ErrCatalogUnavailable):
		return domain.CheckoutStatusCatalogUnavailable
	case isCheckoutRejection(err):
		return domain.CheckoutStatusStockConflict
	default:
		return domain.CheckoutStatusFailed
	}
}

// fail emits a best-effort CHECKOUT_FAILED event and returns err unchanged.
func (s *CheckoutService) fail(ctx context.Context, userID, cartID string, items []domain.CartItem, err error) error {
	log.Error().Err(err).Str("user_id", userID).Str("cart_id", cartID).Msg("checkout failed")
	cart := domain.Cart{ID: cartID, UserID: userID, Items: items}
	s.emit(ctx, domain.EventCheckoutFailed, checkoutStatus(err), &cart, "", domain.Subtotal(items), "internal error")
	return err
}

func (s *CheckoutService) emit(ctx context.Context, typ domain.EventType, status domain.CheckoutStatus, cart *domain.Cart, orderID string, total int64, reason string) {
	event := domain.CheckoutEvent{
		Type:       typ,
		Status:     status,
		CartID:     cart.ID,
		UserID:     cart.UserID,
		OrderID:    orderID,
		Items:      domain.EventItems(cart.Items),
		Total:      total,
		Currency:   cart.Currency,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	id := s.events.Publish(ctx, s.topic, cart.UserID, event)
	log.Debug().Str("event", string(typ)).Str("message_id", id).Str("cart_id", cart.ID).Msg("checkout event published")
}
