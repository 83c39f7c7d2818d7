package tasks

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/studygrove/studygrove/internal/observability/metrics"
)

// Enqueuer publishes task messages. Enqueue failures are reported but
// never retried here; the periodic reconciliation jobs absorb any
// update a lost message would have delivered.
type Enqueuer struct {
	publisher message.Publisher
	dedup     *DedupLease
	metrics   *metrics.TaskMetrics
	logger    *zap.Logger
}

func NewEnqueuer(ps *PubSub, dedup *DedupLease, logger *zap.Logger) *Enqueuer {
	return &Enqueuer{
		publisher: ps.Publisher,
		dedup:     dedup,
		metrics:   metrics.Tasks(),
		logger:    logger.Named("tasks.enqueue"),
	}
}

// Enqueue publishes payload on topic.
func (e *Enqueuer) Enqueue(ctx context.Context, topic string, payload any) error {
	msg, err := Encode(payload)
	if err != nil {
		e.metrics.IncEnqueueFailure(topic)
		return err
	}
	msg.SetContext(ctx)
	if err := e.publisher.Publish(topic, msg); err != nil {
		e.metrics.IncEnqueueFailure(topic)
		return err
	}
	return nil
}

// EnqueueDeduped publishes payload unless an identical task keyed by
// dedupKey is already queued. The lease token rides in the message
// metadata and is released when a consumer picks the message up. Store
// errors fail open: the task is published anyway, since a duplicate
// push is harmless and a dropped one is not.
func (e *Enqueuer) EnqueueDeduped(ctx context.Context, topic, dedupKey string, payload any) error {
	token, acquired, err := e.dedup.Acquire(ctx, dedupKey)
	if err != nil {
		e.logger.Warn("dedup lease unavailable, enqueueing anyway",
			zap.String("topic", topic), zap.String("key", dedupKey), zap.Error(err))
		return e.Enqueue(ctx, topic, payload)
	}
	if !acquired {
		e.metrics.IncDedupDropped(topic)
		e.logger.Debug("duplicate enqueue suppressed",
			zap.String("topic", topic), zap.String("key", dedupKey))
		return nil
	}

	msg, err := Encode(payload)
	if err != nil {
		e.releaseLease(ctx, dedupKey, token)
		e.metrics.IncEnqueueFailure(topic)
		return err
	}
	msg.SetContext(ctx)
	msg.Metadata.Set(MetaDedupKey, dedupKey)
	msg.Metadata.Set(MetaDedupToken, token)
	if err := e.publisher.Publish(topic, msg); err != nil {
		e.releaseLease(ctx, dedupKey, token)
		e.metrics.IncEnqueueFailure(topic)
		return err
	}
	return nil
}

// EnqueueLogged is Enqueue for fire-and-forget call sites such as
// after-commit callbacks, where there is no caller left to hand the
// error to.
func (e *Enqueuer) EnqueueLogged(ctx context.Context, topic string, payload any) {
	if err := e.Enqueue(ctx, topic, payload); err != nil {
		e.logger.Error("enqueue failed", zap.String("topic", topic), zap.Error(err))
	}
}

// EnqueueDedupedLogged is EnqueueDeduped for fire-and-forget call sites.
func (e *Enqueuer) EnqueueDedupedLogged(ctx context.Context, topic, dedupKey string, payload any) {
	if err := e.EnqueueDeduped(ctx, topic, dedupKey, payload); err != nil {
		e.logger.Error("enqueue failed", zap.String("topic", topic),
			zap.String("key", dedupKey), zap.Error(err))
	}
}

func (e *Enqueuer) releaseLease(ctx context.Context, key, token string) {
	if err := e.dedup.Release(ctx, key, token); err != nil {
		e.logger.Warn("dedup lease release failed", zap.String("key", key), zap.Error(err))
	}
}
