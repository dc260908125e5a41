package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformedPayload = errors.New("malformed provider payload")

// providerProduct is the superset of fields the commerce platform is known to send.
type providerProduct struct {
	ID             json.RawMessage   `json:"id"`
	Name           string            `json:"name"`
	Title          string            `json:"title"`
	Price          json.RawMessage   `json:"price"`
	Stock          json.RawMessage   `json:"stock"`
	StockUnlimited bool              `json:"stock_unlimited"`
	Description    string            `json:"description"`
	SKU            string            `json:"sku"`
	Images         []json.RawMessage `json:"images"`
	Categories     []json.RawMessage `json:"categories"`
}

type productWrapper struct {
	Product json.RawMessage `json:"product"`
}

type listWrapper struct {
	Products []json.RawMessage `json:"products"`
}

// ParseProviderProducts normalizes a product listing. The body may be a flat array
// of products, an array of {"product": {...}} wrappers, {"products": [...]}, or a
// single product in either form. Entries without an id are dropped.
func ParseProviderProducts(data []byte) ([]Product, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrMalformedPayload
	}

	var entries []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	case '{':
		var list listWrapper
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if list.Products != nil {
			entries = list.Products
		} else {
			entries = []json.RawMessage{data}
		}
	default:
		if bytes.Equal(data, []byte("null")) {
			return []Product{}, nil
		}
		return nil, ErrMalformedPayload
	}

	products := make([]Product, 0, len(entries))
	for _, raw := range entries {
		p, ok, err := normalizeEntry(raw)
		if err != nil {
			return nil, err
		}
		if ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// ParseProviderProduct normalizes a single product notification, either the bare
// product object or a {"product": {...}} wrapper.
func ParseProviderProduct(data []byte) (Product, error) {
	p, ok, err := normalizeEntry(bytes.TrimSpace(data))
	if err != nil {
		return Product{}, err
	}
	if !ok {
		return Product{}, fmt.Errorf("%w: product has no id", ErrMalformedPayload)
	}
	return p, nil
}

func normalizeEntry(raw json.RawMessage) (Product, bool, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return Product{}, false, nil
	}

	var w productWrapper
	if err := json.Unmarshal(raw, &w); err != nil {
		return Product{}, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if isPresent(w.Product) {
		raw = w.Product
	}

	var pp providerProduct
	if err := json.Unmarshal(raw, &pp); err != nil {
		return Product{}, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	id := scalarText(pp.ID)
	if id == "" {
		return Product{}, false, nil
	}

	price, err := MinorUnits(scalarText(pp.Price))
	if err != nil {
		return Product{}, false, fmt.Errorf("%w: product %s: %v", ErrMalformedPayload, id, err)
	}

	name := pp.Name
	if name == "" {
		name = pp.Title
	}
	if name == "" {
		name = "Unnamed"
	}

	stock := UnlimitedStock
	if !pp.StockUnlimited {
		stock = parseStock(scalarText(pp.Stock))
	}

	return Product{
		ID:          id,
		Name:        name,
		Price:       price,
		Stock:       stock,
		Description: pp.Description,
		Image:       firstNamed(pp.Images, "url"),
		SKU:         pp.SKU,
		Category:    firstNamed(pp.Categories, "name"),
	}, true, nil
}

// MinorUnits converts a provider price to minor units. Integral values are taken
// as already being minor units; fractional values are major units and get
// multiplied by 100 and rounded.
func MinorUnits(text string) (int64, error) {
	if text == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", text)
	}
	if d.IsInteger() {
		return d.IntPart(), nil
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

func parseStock(text string) int {
	if text == "" {
		return 0
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || n < 0 {
		return 0
	}
	return int(n)
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// scalarText renders a JSON string or number as plain text.
func scalarText(raw json.RawMessage) string {
	if !isPresent(raw) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if raw[0] == '{' || raw[0] == '[' || raw[0] == 't' || raw[0] == 'f' {
		return ""
	}
	return string(raw)
}

// firstNamed returns the first element when it is a string, or its key field when
// it is an object.
func firstNamed(list []json.RawMessage, key string) string {
	if len(list) == 0 || !isPresent(list[0]) {
		return ""
	}
	if list[0][0] == '"' {
		return scalarText(list[0])
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(list[0], &obj); err != nil {
		return ""
	}
	return scalarText(obj[key])
}
