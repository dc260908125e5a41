package catalog

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MirrorSource serves the catalog from the local mirror filled by webhooks.
type MirrorSource struct {
	mirror port.MirrorRepository
}

func NewMirrorSource(mirror port.MirrorRepository) *MirrorSource {
	return &MirrorSource{mirror: mirror}
}

func (s *MirrorSource) Products(ctx context.Context) ([]domain.Product, error) {
	return s.mirror.ListProducts(ctx)
}

// Product reads a single mirrored product by its provider id.
func (s *MirrorSource) Product(ctx context.Context, id string) (*domain.Product, error) {
	mp, err := s.mirror.GetByExternalID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &mp.Product, nil
}
