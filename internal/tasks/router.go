package tasks

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.uber.org/zap"

	"github.com/studygrove/studygrove/internal/observability/metrics"
)

// HandlerFunc processes one decoded task message.
type HandlerFunc func(ctx context.Context, msg *message.Message) error

// Router consumes task topics and dispatches to registered handlers.
// Middleware order is release-lease, recover, retry, metrics: the dedup
// lease is freed as soon as a consumer owns the message, so a follow-up
// enqueue during handling is accepted rather than collapsed.
type Router struct {
	router     *message.Router
	subscriber message.Subscriber
	dedup      *DedupLease
	metrics    *metrics.TaskMetrics
	logger     *zap.Logger
}

func NewRouter(ps *PubSub, dedup *DedupLease, wmLogger watermill.LoggerAdapter, logger *zap.Logger) (*Router, error) {
	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 30 * time.Second,
	}, wmLogger)
	if err != nil {
		return nil, err
	}

	r := &Router{
		router:     wmRouter,
		subscriber: ps.Subscriber,
		dedup:      dedup,
		metrics:    metrics.Tasks(),
		logger:     logger.Named("tasks.router"),
	}

	wmRouter.AddMiddleware(
		r.releaseLeaseMiddleware,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			Logger:          wmLogger,
		}.Middleware,
		r.metricsMiddleware,
	)

	return r, nil
}

// Handle registers fn as the consumer for topic.
func (r *Router) Handle(topic string, fn HandlerFunc) {
	r.router.AddNoPublisherHandler(topic, topic, r.subscriber, func(msg *message.Message) error {
		return fn(msg.Context(), msg)
	})
}

// Run blocks serving messages until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running closes once the router accepts messages.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	return r.router.Close()
}

// releaseLeaseMiddleware frees the enqueue-side dedup lease before the
// handler runs.
func (r *Router) releaseLeaseMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		key := msg.Metadata.Get(MetaDedupKey)
		token := msg.Metadata.Get(MetaDedupToken)
		if key != "" && token != "" {
			if err := r.dedup.Release(msg.Context(), key, token); err != nil {
				r.logger.Warn("dedup lease release failed", zap.String("key", key), zap.Error(err))
			}
		}
		return h(msg)
	}
}

func (r *Router) metricsMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		topic := message.SubscribeTopicFromCtx(msg.Context())
		start := time.Now()
		out, err := h(msg)
		r.metrics.ObserveDuration(topic, time.Since(start))
		r.metrics.IncExecution(topic, err)
		return out, err
	}
}
