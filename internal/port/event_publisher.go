package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

// EventPublisher never fails from the caller's point of view: when the broker is
// unreachable it returns a locally generated fallback id.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload any) string

	// EnqueueCartSnapshot hands the snapshot to the background publish queue
	EnqueueCartSnapshot(snapshot domain.CartSnapshot)
}
