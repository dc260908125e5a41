package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
)

type Options struct {
	MaxAttempts   int
	Timeout       time.Duration // per attempt
	Backoff       time.Duration // grows linearly with the attempt number
	QueueSize     int
	Workers       int
	SnapshotTopic string
}

// Publisher implements port.EventPublisher. Sends retry a bounded number of
// times and then fall back to a synthetic id, so callers never see a broker
// failure. Degraded sends are logged and counted.
type Publisher struct {
	bus     Bus
	opts    Options
	metrics *metrics.Metrics

	queue     chan domain.CartSnapshot
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPublisher starts the snapshot workers. A nil bus runs permanently degraded.
func NewPublisher(bus Bus, m *metrics.Metrics, opts Options) *Publisher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	p := &Publisher{
		bus:     bus,
		opts:    opts,
		metrics: m,
		queue:   make(chan domain.CartSnapshot, opts.QueueSize),
	}

	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(id)
		}(i)
	}
	log.Info().Int("workers", opts.Workers).Msg("started event publisher workers")
	return p
}

// Publish encodes payload as JSON and sends it synchronously.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("encode event")
		return p.degrade(topic, key, err)
	}
	return p.send(ctx, Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		Key:         key,
		Value:       data,
		ContentType: contentTypeJSON,
	})
}

// EnqueueCartSnapshot never blocks; a full queue degrades the snapshot.
func (p *Publisher) EnqueueCartSnapshot(snapshot domain.CartSnapshot) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.degrade(p.opts.SnapshotTopic, snapshot.CartID, ErrBusClosed)
		return
	}

	select {
	case p.queue <- snapshot:
	default:
		p.degrade(p.opts.SnapshotTopic, snapshot.CartID, ErrQueueFull)
	}
}

func (p *Publisher) workerLoop(id int) {
	for snapshot := range p.queue {
		msgID := p.send(context.Background(), Message{
			ID:          uuid.NewString(),
			Topic:       p.opts.SnapshotTopic,
			Key:         snapshot.CartID,
			Value:       EncodeCartSnapshot(snapshot),
			ContentType: contentTypeProtobuf,
		})
		log.Debug().Int("worker", id).Str("cart_id", snapshot.CartID).Str("message_id", msgID).Msg("cart snapshot published")
	}
}

func (p *Publisher) send(ctx context.Context, msg Message) string {
	if p.bus == nil {
		return p.degrade(msg.Topic, msg.Key, ErrNoBroker)
	}

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		lastErr = p.bus.Send(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			p.metrics.EventsPublished.WithLabelValues(msg.Topic, "sent").Inc()
			return msg.ID
		}

		log.Debug().Err(lastErr).Str("topic", msg.Topic).Int("attempt", attempt).Msg("publish attempt failed")
		if attempt == p.opts.MaxAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(p.opts.Backoff * time.Duration(attempt)):
		case <-ctx.Done():
		}
	}
	return p.degrade(msg.Topic, msg.Key, lastErr)
}

func (p *Publisher) degrade(topic, key string, cause error) string {
	id := fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	p.metrics.EventsPublished.WithLabelValues(topic, "degraded").Inc()
	p.metrics.EventsDegraded.WithLabelValues(topic).Inc()
	log.Warn().Err(cause).Str("topic", topic).Str("key", key).Str("message_id", id).Msg("event publish degraded")
	return id
}

// Close drains queued snapshots, stops the workers and closes the bus.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		log.Info().Msg("event publisher workers stopped")
		if p.bus != nil {
			err = p.bus.Close()
		}
	})
	return err
}
