package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror writes the same snapshot shape into a redis hash, keyed by a
// fixed name, where it can be inspected from outside the process. It is
// never the store of record: the daemon's own startup reads the file.
type RedisMirror struct {
	client *redis.Client
	key    string
}

// NewRedisMirror connects to the redis instance at url (a standard
// redis:// connection string) and returns a mirror writing under the given
// key. The connection is pinged once so configuration mistakes surface at
// startup rather than on the first heartbeat write.
func NewRedisMirror(ctx context.Context, url, key string) (*RedisMirror, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if key == "" {
		key = "cradle:state"
	}
	return &RedisMirror{client: client, key: key}, nil
}

// Save mirrors the snapshot into the redis hash. Failures are the caller's
// to swallow — the file store remains authoritative.
func (m *RedisMirror) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return m.client.HSet(ctx, m.key, "snapshot", data, "updated_at", time.Now().Format(time.RFC3339)).Err()
}

// Load reads the mirrored snapshot, if any.
func (m *RedisMirror) Load(ctx context.Context) (Snapshot, bool, error) {
	data, err := m.client.HGet(ctx, m.key, "snapshot").Result()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read mirrored snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal mirrored snapshot: %w", err)
	}
	return snap, true, nil
}

// Close releases the redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
