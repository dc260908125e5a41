package port

import (
	"context"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

var (
	// ErrCatalogUnavailable means the catalog could not be read. It never means "no products".
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrProductNotFound    = errors.New("product not found")
)

type Catalog interface {
	FetchAll(ctx context.Context) ([]domain.Product, error)
	FetchOne(ctx context.Context, id string) (*domain.Product, error)
}
