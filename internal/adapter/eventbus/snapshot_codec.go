package eventbus

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Wire schema of a cart snapshot:
//
//	message CartSnapshot {
//	  string cart_id = 1;
//	  string user_id = 2;
//	  string currency = 3;
//	  repeated Item items = 4;
//	  int64 subtotal = 5;
//	  int64 total = 6;
//	  int64 captured_at_ms = 7;
//	}
//	message Item {
//	  string product_id = 1;
//	  string name = 2;
//	  int64 quantity = 3;
//	  int64 unit_price = 4;
//	}
const (
	fieldCartID     protowire.Number = 1
	fieldUserID     protowire.Number = 2
	fieldCurrency   protowire.Number = 3
	fieldItems      protowire.Number = 4
	fieldSubtotal   protowire.Number = 5
	fieldTotal      protowire.Number = 6
	fieldCapturedAt protowire.Number = 7

	fieldItemProductID protowire.Number = 1
	fieldItemName      protowire.Number = 2
	fieldItemQuantity  protowire.Number = 3
	fieldItemUnitPrice protowire.Number = 4
)

var ErrMalformedSnapshot = errors.New("malformed cart snapshot")

func EncodeCartSnapshot(s domain.CartSnapshot) []byte {
	var b []byte
	b = appendString(b, fieldCartID, s.CartID)
	b = appendString(b, fieldUserID, s.UserID)
	b = appendString(b, fieldCurrency, s.Currency)
	for _, it := range s.Items {
		var item []byte
		item = appendString(item, fieldItemProductID, it.ProductID)
		item = appendString(item, fieldItemName, it.Name)
		item = appendInt(item, fieldItemQuantity, int64(it.Quantity))
		item = appendInt(item, fieldItemUnitPrice, it.UnitPrice)

		b = protowire.AppendTag(b, fieldItems, protowire.BytesType)
		b = protowire.AppendBytes(b, item)
	}
	b = appendInt(b, fieldSubtotal, s.Subtotal)
	b = appendInt(b, fieldTotal, s.Total)
	if !s.CapturedAt.IsZero() {
		b = appendInt(b, fieldCapturedAt, s.CapturedAt.UnixMilli())
	}
	return b
}

func DecodeCartSnapshot(b []byte) (domain.CartSnapshot, error) {
	s := domain.CartSnapshot{Items: []domain.EventItem{}}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldCartID && typ == protowire.BytesType:
			s.CartID = string(v)
		case num == fieldUserID && typ == protowire.BytesType:
			s.UserID = string(v)
		case num == fieldCurrency && typ == protowire.BytesType:
			s.Currency = string(v)
		case num == fieldItems && typ == protowire.BytesType:
			item, err := decodeItem(v)
			if err != nil {
				return err
			}
			s.Items = append(s.Items, item)
		case num == fieldSubtotal && typ == protowire.VarintType:
			s.Subtotal = int64(n)
		case num == fieldTotal && typ == protowire.VarintType:
			s.Total = int64(n)
		case num == fieldCapturedAt && typ == protowire.VarintType:
			s.CapturedAt = time.UnixMilli(int64(n)).UTC()
		}
		return nil
	})
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	return s, nil
}

func decodeItem(b []byte) (domain.EventItem, error) {
	var it domain.EventItem
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldItemProductID && typ == protowire.BytesType:
			it.ProductID = string(v)
		case num == fieldItemName && typ == protowire.BytesType:
			it.Name = string(v)
		case num == fieldItemQuantity && typ == protowire.VarintType:
			it.Quantity = int(int64(n))
		case num == fieldItemUnitPrice && typ == protowire.VarintType:
			it.UnitPrice = int64(n)
		}
		return nil
	})
	return it, err
}

// walkFields calls fn for every field; v is set for length-delimited fields and
// n for varints. Unknown fields are skipped.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, protowire.ParseError(tagLen))
		}
		b = b[tagLen:]

		var (
			v      []byte
			n      uint64
			valLen int
		)
		switch typ {
		case protowire.BytesType:
			v, valLen = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			n, valLen = protowire.ConsumeVarint(b)
		default:
			valLen = protowire.ConsumeFieldValue(num, typ, b)
		}
		if valLen < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedSnapshot, num, protowire.ParseError(valLen))
		}
		b = b[valLen:]

		if err := fn(num, typ, v, n); err != nil {
			return err
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}
