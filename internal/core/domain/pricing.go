package domain

// PricingRules drives the step-function shipping fee and volume discount.
// All amounts are minor currency units.
type PricingRules struct {
	ShippingFee           int64
	FreeShippingThreshold int64 // shipping is free when subtotal is strictly above this
	DiscountThreshold     int64 // discount applies when subtotal is at or above this
	DiscountPercent       int64
}

func DefaultPricingRules() PricingRules {
	return PricingRules{
		ShippingFee:           500,
		FreeShippingThreshold: 5000,
		DiscountThreshold:     10000,
		DiscountPercent:       10,
	}
}

func (r PricingRules) Shipping(subtotal int64) int64 {
	if subtotal == 0 || subtotal > r.FreeShippingThreshold {
		return 0
	}
	return r.ShippingFee
}

// Discount rounds half up, matching Math.round on non-negative amounts.
func (r PricingRules) Discount(subtotal int64) int64 {
	if subtotal < r.DiscountThreshold || r.DiscountPercent <= 0 {
		return 0
	}
	return (subtotal*r.DiscountPercent + 50) / 100
}

// Price recomputes every line total from the stored snapshot prices.
func (r PricingRules) Price(cart *Cart) CartView {
	view := CartView{Items: []LineView{}}
	if cart == nil {
		return view
	}

	view.CartID = cart.ID
	view.UserID = cart.UserID
	view.Currency = cart.Currency
	for _, it := range cart.Items {
		view.Items = append(view.Items, LineView{
			ID:        it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal(),
		})
	}

	view.Subtotal = Subtotal(cart.Items)
	view.Shipping = r.Shipping(view.Subtotal)
	view.Discount = r.Discount(view.Subtotal)
	view.Total = view.Subtotal + view.Shipping - view.Discount
	return view
}
