// Package presence tracks which users are currently online. Liveness
// is a TTL key per user; a parallel set makes listing cheap and is
// lazily purged of entries whose TTL key has expired.
package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/studygrove/studygrove/internal/cache"
	"github.com/studygrove/studygrove/internal/config"
)

const (
	onlineKeyFormat = "online_user:%d"
	onlineSetKey    = "online_users_set"

	listCacheTTL = 2 * time.Second
	listCacheKey = "online_ids"
)

type Tracker struct {
	client    *redis.Client
	ttl       time.Duration
	listCache cache.Cache[string, []int64]
	logger    *zap.Logger
}

func NewTracker(cfg config.Config, client *redis.Client, logger *zap.Logger) *Tracker {
	return &Tracker{
		client:    client,
		ttl:       cfg.PresenceTTL,
		listCache: cache.NewTTLCache[string, []int64](),
		logger:    logger.Named("presence"),
	}
}

// MarkOnline refreshes the user's liveness window and adds them to the
// online set in one atomic batch.
func (t *Tracker) MarkOnline(ctx context.Context, userID int64) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, onlineKey(userID), "1", t.ttl)
		pipe.SAdd(ctx, onlineSetKey, userID)
		return nil
	})
	return err
}

// RemoveOnline drops the user immediately, without waiting for the TTL.
func (t *Tracker) RemoveOnline(ctx context.Context, userID int64) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, onlineKey(userID))
		pipe.SRem(ctx, onlineSetKey, userID)
		return nil
	})
	return err
}

// IsOnline reports whether the user's liveness key is still alive.
func (t *Tracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := t.client.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOnlineIDs returns every user whose liveness key is alive. Set
// members whose key has expired are evicted as a side effect.
func (t *Tracker) ListOnlineIDs(ctx context.Context) ([]int64, error) {
	members, err := t.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(members))
	checks := make([]*redis.IntCmd, 0, len(members))
	pipe := t.client.Pipeline()
	for _, member := range members {
		var id int64
		if _, err := fmt.Sscan(member, &id); err != nil {
			continue
		}
		ids = append(ids, id)
		checks = append(checks, pipe.Exists(ctx, onlineKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	live := make([]int64, 0, len(ids))
	var stale []interface{}
	for i, check := range checks {
		if check.Val() > 0 {
			live = append(live, ids[i])
		} else {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := t.client.SRem(ctx, onlineSetKey, stale...).Err(); err != nil {
			t.logger.Warn("stale presence eviction failed", zap.Error(err))
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
	return live, nil
}

// CachedListOnlineIDs serves list requests from a short-lived cache so
// hot pages do not hammer the store.
func (t *Tracker) CachedListOnlineIDs(ctx context.Context) ([]int64, error) {
	if ids, ok := t.listCache.Get(listCacheKey); ok {
		return ids, nil
	}
	ids, err := t.ListOnlineIDs(ctx)
	if err != nil {
		return nil, err
	}
	t.listCache.Set(listCacheKey, ids, listCacheTTL)
	return ids, nil
}

func onlineKey(userID int64) string {
	return fmt.Sprintf(onlineKeyFormat, userID)
}
