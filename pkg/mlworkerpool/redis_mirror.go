package mlworkerpool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror publishes worker-pool occupancy to Redis for cross-process
// observability. It is read-only from the coordinator's perspective: the
// coordinator itself remains the sole writer of pool state per spec.md §5,
// the mirror only lets other processes (a future admin surface) observe it.
type RedisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// occupancySnapshot is the JSON payload published on every cache mutation.
type occupancySnapshot struct {
	Active    int       `json:"active"`
	Cached    int       `json:"cached"`
	SlotCount int       `json:"slot_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRedisMirror builds a mirror publishing occupancy snapshots under key,
// each entry expiring after ttl if no further update arrives.
func NewRedisMirror(client *redis.Client, key string, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, key: key, ttl: ttl}
}

// Publish writes the current occupancy snapshot. Failures are swallowed by
// design: the mirror is a best-effort observability side-channel and must
// never block or fail the coordinator's own cache mutation.
func (m *RedisMirror) Publish(active, cached, slotCount int) {
	if m == nil || m.client == nil {
		return
	}
	data, err := json.Marshal(occupancySnapshot{
		Active:    active,
		Cached:    cached,
		SlotCount: slotCount,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.client.Set(ctx, m.key, data, m.ttl).Err()
}
