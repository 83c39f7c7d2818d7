package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studygrove/studygrove/internal/config"
	"github.com/studygrove/studygrove/internal/observability/metrics"
)

func newTestStack(t *testing.T) (*Enqueuer, *Router, *miniredis.Miniredis) {
	t.Helper()
	metrics.ResetTaskMetricsForTest()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	wmLogger := watermill.NopLogger{}
	ps, err := NewPubSub(config.Config{TaskTransport: "memory"}, nil, wmLogger)
	require.NoError(t, err)

	dedup := NewDedupLease(client)
	enq := NewEnqueuer(ps, dedup, zap.NewNop())
	router, err := NewRouter(ps, dedup, wmLogger, zap.NewNop())
	require.NoError(t, err)
	return enq, router, mr
}

func runRouter(t *testing.T, router *Router) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = router.Run(ctx) }()
	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
	t.Cleanup(func() {
		cancel()
		_ = router.Close()
	})
}

func TestEnqueueDedupedSuppressesWhileQueued(t *testing.T) {
	enq, _, _ := newTestStack(t)
	ctx := context.Background()

	require.NoError(t, enq.EnqueueDeduped(ctx, TopicPushUnreadCount, "push:42",
		PushUnreadCountPayload{UserID: 42, UpdateList: true}))
	// Second enqueue with the live lease collapses silently.
	require.NoError(t, enq.EnqueueDeduped(ctx, TopicPushUnreadCount, "push:42",
		PushUnreadCountPayload{UserID: 42, UpdateList: true}))
	// A different key is unaffected.
	require.NoError(t, enq.EnqueueDeduped(ctx, TopicPushUnreadCount, "push:7",
		PushUnreadCountPayload{UserID: 7, UpdateList: true}))
}

func TestConsumerReleasesLeaseBeforeHandling(t *testing.T) {
	enq, router, _ := newTestStack(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []int64
	handled := make(chan struct{}, 4)
	router.Handle(TopicPushUnreadCount, func(ctx context.Context, msg *message.Message) error {
		var p PushUnreadCountPayload
		if err := Decode(msg, &p); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, p.UserID)
		mu.Unlock()
		handled <- struct{}{}
		return nil
	})
	runRouter(t, router)

	require.NoError(t, enq.EnqueueDeduped(ctx, TopicPushUnreadCount, "push:42",
		PushUnreadCountPayload{UserID: 42}))
	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not handled")
	}

	// Lease was released on pickup, so the same key enqueues again.
	require.NoError(t, enq.EnqueueDeduped(ctx, TopicPushUnreadCount, "push:42",
		PushUnreadCountPayload{UserID: 42}))
	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("second message was not handled")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{42, 42}, got)
}

func TestEnqueueDedupedFailsOpenWhenStoreDown(t *testing.T) {
	enq, router, mr := newTestStack(t)
	ctx := context.Background()

	handled := make(chan struct{}, 2)
	router.Handle(TopicPushUnreadCount, func(context.Context, *message.Message) error {
		handled <- struct{}{}
		return nil
	})
	runRouter(t, router)

	mr.Close()

	// Store errors must not block the push.
	require.NoError(t, enq.EnqueueDeduped(ctx, TopicPushUnreadCount, "push:42",
		PushUnreadCountPayload{UserID: 42}))
	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not handled with store down")
	}
}

func TestDedupLeaseExpires(t *testing.T) {
	enq, _, mr := newTestStack(t)
	ctx := context.Background()

	token, ok, err := enq.dedup.Acquire(ctx, "push:9")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = enq.dedup.Acquire(ctx, "push:9")
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(DedupTTL + time.Second)

	_, ok, err = enq.dedup.Acquire(ctx, "push:9")
	require.NoError(t, err)
	require.True(t, ok, "lease must expire on its own after the TTL")
}
