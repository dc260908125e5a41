package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const signaturePrefix = "sha256="

// IngestResult describes an accepted webhook delivery.
type IngestResult struct {
	Product   domain.Product
	Inserted  bool
	Duplicate bool
	MessageID string
}

type WebhookService struct {
	secret    []byte
	mirror    port.MirrorRepository
	cache     port.CacheRepository
	events    port.EventPublisher
	topic     string
	dedupeTTL time.Duration
}

// NewWebhookService builds the ingestor. An empty secret disables signature
// checks and a nil cache disables delivery dedupe.
func NewWebhookService(secret string, mirror port.MirrorRepository, cache port.CacheRepository, events port.EventPublisher, topic string, dedupeTTL time.Duration) *WebhookService {
	return &WebhookService{
		secret:    []byte(secret),
		mirror:    mirror,
		cache:     cache,
		events:    events,
		topic:     topic,
		dedupeTTL: dedupeTTL,
	}
}

// Ingest authenticates the raw body, then upserts the product into the mirror
// and publishes a product update. Redelivery of an identical body converges on
// the same mirror row. With a cache, a body is skipped only when it matches the
// payload last applied for the same product.
func (s *WebhookService) Ingest(ctx context.Context, body []byte, signature string) (*IngestResult, error) {
	if len(s.secret) > 0 && !VerifySignature(s.secret, body, signature) {
		return nil, ErrInvalidSignature
	}

	product, err := domain.ParseProviderProduct(body)
	if err != nil {
		return nil, fmt.Errorf("parse webhook: %w", err)
	}

	key, digest := deliveryKey(product.ID), bodyDigest(body)
	if s.cache != nil {
		fresh, err := s.cache.ClaimDelivery(ctx, key, digest, s.dedupeTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("product_id", product.ID).Msg("webhook dedupe unavailable")
		case !fresh:
			log.Info().Str("product_id", product.ID).Msg("duplicate webhook delivery")
			return &IngestResult{Product: product, Duplicate: true}, nil
		}
	}

	inserted, err := s.mirror.UpsertProduct(ctx, product)
	if err != nil {
		s.release(ctx, key, digest)
		return nil, fmt.Errorf("upsert mirror product %s: %w", product.ID, err)
	}

	id := s.events.Publish(ctx, s.topic, product.ID, domain.ProductUpdatedEvent{
		Type:       domain.EventProductUpdated,
		Product:    product,
		Inserted:   inserted,
		OccurredAt: time.Now().UTC(),
	})

	log.Info().Str("product_id", product.ID).Bool("inserted", inserted).Str("message_id", id).Msg("webhook ingested")
	return &IngestResult{Product: product, Inserted: inserted, MessageID: id}, nil
}

func (s *WebhookService) release(ctx context.Context, key, digest string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ReleaseDelivery(ctx, key, digest); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("release webhook dedupe key")
	}
}

// VerifySignature checks a "sha256=<hex>" header against the HMAC-SHA256 of
// the raw body.
func VerifySignature(secret, body []byte, header string) bool {
	expected := Sign(secret, body)
	if len(header) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(header))
}

// Sign returns the header value VerifySignature accepts.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func deliveryKey(productID string) string {
	return "webhook:" + productID
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
