package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DedupTTL bounds how long an unreleased lease can suppress duplicates.
// A crashed consumer never leaves a key stuck past this window.
const DedupTTL = 10 * time.Second

const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// DedupLease suppresses duplicate enqueues of the same logical task
// while one is already queued. The lease is released when the consumer
// picks the message up, so execution itself is never blocked.
type DedupLease struct {
	client *redis.Client
	script *redis.Script
}

func NewDedupLease(client *redis.Client) *DedupLease {
	if client == nil {
		return nil
	}
	return &DedupLease{
		client: client,
		script: redis.NewScript(leaseReleaseScript),
	}
}

// Acquire takes the lease for key. It returns the release token and
// whether the caller holds the lease. Errors from the store are
// returned so the caller can fail open.
func (d *DedupLease) Acquire(ctx context.Context, key string) (string, bool, error) {
	if d == nil || d.client == nil {
		return "", true, nil
	}
	token := uuid.NewString()
	ok, err := d.client.SetNX(ctx, leaseKey(key), token, DedupTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the lease iff token still owns it.
func (d *DedupLease) Release(ctx context.Context, key, token string) error {
	if d == nil || d.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return d.script.Run(ctx, d.client, []string{leaseKey(key)}, token).Err()
}

func leaseKey(key string) string {
	return fmt.Sprintf("task_lease:%s", key)
}
