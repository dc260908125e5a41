package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// ItemRequest is one requested line of a cart replacement.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

type CartService struct {
	carts    port.CartRepository
	catalog  port.Catalog
	events   port.EventPublisher
	pricing  domain.PricingRules
	currency string
}

func NewCartService(carts port.CartRepository, catalog port.Catalog, events port.EventPublisher, pricing domain.PricingRules, currency string) *CartService {
	return &CartService{
		carts:    carts,
		catalog:  catalog,
		events:   events,
		pricing:  pricing,
		currency: currency,
	}
}

// AddItem adds quantity of a product to the user's cart, creating the cart on
// first use. The existing quantity plus the requested one must fit in stock.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (domain.CartView, error) {
	if quantity < 1 {
		return domain.CartView{}, ErrInvalidQuantity
	}

	product, err := s.catalog.FetchOne(ctx, productID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("fetch product: %w", err)
	}

	var cart domain.Cart
	err = s.carts.WithCart(ctx, userID, true, func(tx port.CartTx) error {
		existing, err := tx.Item(ctx, productID)
		if err != nil {
			return err
		}

		current := 0
		if existing != nil {
			current = existing.Quantity
		}
		if current+quantity > product.Stock {
			return &InsufficientStockError{
				ProductID:  productID,
				Available:  product.Stock,
				Requested:  current + quantity,
				Cumulative: current > 0,
			}
		}

		item := domain.CartItem{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  current + quantity,
			AddedAt:   time.Now().UTC(),
		}
		if existing != nil {
			item = *existing
			item.Quantity = current + quantity
		}
		if err := tx.PutItem(ctx, item); err != nil {
			return err
		}

		cart, err = loadCart(ctx, tx)
		return err
	})
	if err != nil {
		return domain.CartView{}, fmt.Errorf("add item: %w", err)
	}

	return s.publishView(&cart), nil
}

// SetQuantity overwrites a line's quantity. Zero removes the line without
// consulting the catalog.
func (s *CartService) SetQuantity(ctx context.Context, userID, productID string, quantity int) (domain.CartView, error) {
	if quantity < 0 {
		return domain.CartView{}, ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	product, err := s.catalog.FetchOne(ctx, productID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("fetch product: %w", err)
	}
	if quantity > product.Stock {
		return domain.CartView{}, &InsufficientStockError{
			ProductID: productID,
			Available: product.Stock,
			Requested: quantity,
		}
	}

	var cart domain.Cart
	err = s.carts.WithCart(ctx, userID, true, func(tx port.CartTx) error {
		existing, err := tx.Item(ctx, productID)
		if err != nil {
			return err
		}

		item := domain.CartItem{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			UnitPrice: product.Price,
			AddedAt:   time.Now().UTC(),
		}
		if existing != nil {
			item = *existing
		}
		item.Quantity = quantity
		if err := tx.PutItem(ctx, item); err != nil {
			return err
		}

		cart, err = loadCart(ctx, tx)
		return err
	})
	if err != nil {
		return domain.CartView{}, fmt.Errorf("set quantity: %w", err)
	}

	return s.publishView(&cart), nil
}

// RemoveItem deletes a line. Removing an absent line, or from an absent cart, succeeds.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (domain.CartView, error) {
	var cart domain.Cart
	err := s.carts.WithCart(ctx, userID, false, func(tx port.CartTx) error {
		if err := tx.DeleteItem(ctx, productID); err != nil {
			return err
		}
		var err error
		cart, err = loadCart(ctx, tx)
		return err
	})
	if errors.Is(err, port.ErrCartNotFound) {
		return s.emptyView(userID), nil
	}
	if err != nil {
		return domain.CartView{}, fmt.Errorf("remove item: %w", err)
	}

	return s.publishView(&cart), nil
}

// ReplaceCart swaps the whole content of the user's cart. Duplicate product ids
// are merged before stock is checked.
func (s *CartService) ReplaceCart(ctx context.Context, userID string, requested []ItemRequest) (domain.CartView, error) {
	merged := make(map[string]int, len(requested))
	order := make([]string, 0, len(requested))
	for _, r := range requested {
		if r.ProductID == "" || r.Quantity < 1 {
			return domain.CartView{}, ErrInvalidQuantity
		}
		if _, seen := merged[r.ProductID]; !seen {
			order = append(order, r.ProductID)
		}
		merged[r.ProductID] += r.Quantity
	}

	var index domain.ProductIndex
	if len(order) > 0 {
		products, err := s.catalog.FetchAll(ctx)
		if err != nil {
			return domain.CartView{}, fmt.Errorf("fetch catalog: %w", err)
		}
		index = domain.IndexProducts(products)
	}

	now := time.Now().UTC()
	items := make([]domain.CartItem, 0, len(order))
	for _, id := range order {
		product, ok := index[id]
		if !ok {
			return domain.CartView{}, fmt.Errorf("replace cart %s: %w", id, port.ErrProductNotFound)
		}
		if merged[id] > product.Stock {
			return domain.CartView{}, &InsufficientStockError{
				ProductID: id,
				Available: product.Stock,
				Requested: merged[id],
			}
		}
		items = append(items, domain.CartItem{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  merged[id],
			AddedAt:   now,
		})
	}

	var cart domain.Cart
	err := s.carts.WithCart(ctx, userID, true, func(tx port.CartTx) error {
		if err := tx.ClearItems(ctx); err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.PutItem(ctx, item); err != nil {
				return err
			}
		}
		var err error
		cart, err = loadCart(ctx, tx)
		return err
	})
	if err != nil {
		return domain.CartView{}, fmt.Errorf("replace cart: %w", err)
	}

	return s.publishView(&cart), nil
}

// Snapshot prices the user's cart from the stored snapshot prices. A user
// without a cart gets an empty view.
func (s *CartService) Snapshot(ctx context.Context, userID string) (domain.CartView, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if errors.Is(err, port.ErrCartNotFound) {
		return s.emptyView(userID), nil
	}
	if err != nil {
		return domain.CartView{}, fmt.Errorf("get cart: %w", err)
	}
	return s.pricing.Price(cart), nil
}

func (s *CartService) SnapshotByID(ctx context.Context, cartID string) (domain.CartView, error) {
	cart, err := s.carts.GetCartByID(ctx, cartID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("get cart %s: %w", cartID, err)
	}
	return s.pricing.Price(cart), nil
}

// ValidateCart re-checks every stored line against the live catalog.
func (s *CartService) ValidateCart(ctx context.Context, userID string) (domain.CartView, error) {
	view, err := s.Snapshot(ctx, userID)
	if err != nil || len(view.Items) == 0 {
		return view, err
	}

	products, err := s.catalog.FetchAll(ctx)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("fetch catalog: %w", err)
	}
	index := domain.IndexProducts(products)

	var missing []string
	var problems []domain.StockProblem
	for _, line := range view.Items {
		product, ok := index[line.ID]
		if !ok {
			missing = append(missing, line.ID)
			continue
		}
		if line.Quantity > product.Stock {
			problems = append(problems, stockProblem(domain.CartItem{
				ProductID: line.ID,
				Name:      line.Name,
				Quantity:  line.Quantity,
			}, product.Stock))
		}
	}
	if len(missing) > 0 {
		return domain.CartView{}, &UnknownItemsError{ProductIDs: missing}
	}
	if len(problems) > 0 {
		return domain.CartView{}, &StockConflictError{Problems: problems}
	}
	return view, nil
}

func (s *CartService) emptyView(userID string) domain.CartView {
	view := s.pricing.Price(nil)
	view.UserID = userID
	view.Currency = s.currency
	return view
}

func (s *CartService) publishView(cart *domain.Cart) domain.CartView {
	view := s.pricing.Price(cart)
	s.events.EnqueueCartSnapshot(domain.CartSnapshot{
		CartID:     cart.ID,
		UserID:     cart.UserID,
		Currency:   cart.Currency,
		Items:      domain.EventItems(cart.Items),
		Subtotal:   view.Subtotal,
		Total:      view.Total,
		CapturedAt: time.Now().UTC(),
	})
	return view
}

func loadCart(ctx context.Context, tx port.CartTx) (domain.Cart, error) {
	items, err := tx.Items(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := tx.Cart()
	cart.Items = items
	return cart, nil
}
