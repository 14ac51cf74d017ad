// Package heartbeat is a Redis-backed publish/read pair a node can consult
// to decide whether the current leader has gone quiet, without the
// replication core itself depending on Redis for correctness.
package heartbeat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// staleAfter is the age past which a recorded heartbeat is considered stale.
const staleAfter = 4 * time.Second

// Publisher writes this node's liveness to a shared Redis key.
type Publisher struct {
	client *redis.Client
	key    string
	nodeID string
}

// NewPublisher wraps client, publishing under key on behalf of nodeID.
func NewPublisher(client *redis.Client, key, nodeID string) *Publisher {
	return &Publisher{client: client, key: key, nodeID: nodeID}
}

// Publish writes "current_leader=<id>:<unix_ts>" to the configured key.
func (p *Publisher) Publish(ctx context.Context) error {
	value := fmt.Sprintf("current_leader=%s:%d", p.nodeID, time.Now().Unix())
	if err := p.client.Set(ctx, p.key, value, 0).Err(); err != nil {
		return fmt.Errorf("heartbeat: publish: %w", err)
	}
	return nil
}

// Run publishes on every tick until ctx is canceled. A single failed
// publish is swallowed — it only delays the next tick's attempt.
func (p *Publisher) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = p.Publish(ctx)
		}
	}
}

// Reader answers whether the leader is stale by reading the same key a
// Publisher writes to.
type Reader struct {
	client *redis.Client
	key    string
}

// NewReader wraps client, reading from key.
func NewReader(client *redis.Client, key string) *Reader {
	return &Reader{client: client, key: key}
}

// IsStale reports whether the last recorded heartbeat is older than
// staleAfter, or absent entirely (treated as stale — nothing has ever
// announced itself).
func (r *Reader) IsStale(ctx context.Context) bool {
	value, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		return true
	}

	ts, ok := parseTimestamp(value)
	if !ok {
		return true
	}

	return time.Since(time.Unix(ts, 0)) > staleAfter
}

func parseTimestamp(value string) (int64, bool) {
	_, ts, found := strings.Cut(value, ":")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
