package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CacheRepository interface {
	// GetCatalog returns the cached catalog snapshot, ok is false on a miss
	GetCatalog(ctx context.Context) (products []domain.Product, ok bool, err error)

	// SetCatalog stores a catalog snapshot for the given window
	SetCatalog(ctx context.Context, products []domain.Product, ttl time.Duration) error

	// ClaimDelivery records digest as the latest payload applied under key.
	// It returns false, and changes nothing, when key already holds digest.
	ClaimDelivery(ctx context.Context, key, digest string, ttl time.Duration) (bool, error)

	// ReleaseDelivery forgets key while it still holds digest so a failed
	// delivery can be retried
	ReleaseDelivery(ctx context.Context, key, digest string) error
}
