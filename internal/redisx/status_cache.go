package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/futura-orders/internal/orders"
)

type cachedStatus struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache implements orders.StatusCache.
type StatusCache struct {
	RDB *redis.Client
	TTL time.Duration
}

var _ orders.StatusCache = (*StatusCache)(nil)

func (c *StatusCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return TTLStatusCache
}

// SetStatus is the write path used by the order workflow; it always wins.
func (c *StatusCache) SetStatus(ctx context.Context, orderID int64, s orders.Status) error {
	b, err := encodeStatus(s)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, c.ttl()).Err()
}

// FillStatus is the read path: it only populates an empty slot, so a value
// read from the store can never replace a newer one written by the workflow.
func (c *StatusCache) FillStatus(ctx context.Context, orderID int64, s orders.Status) (bool, error) {
	b, err := encodeStatus(s)
	if err != nil {
		return false, err
	}
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, c.ttl()).Result()
}

func encodeStatus(s orders.Status) ([]byte, error) {
	return json.Marshal(cachedStatus{Status: s, UpdatedAt: time.Now().UTC()})
}

func (c *StatusCache) DropStatus(ctx context.Context, orderID int64) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

// GetStatus returns ok=false on a cache miss.
func (c *StatusCache) GetStatus(ctx context.Context, orderID int64) (orders.Status, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var v cachedStatus
	if err := json.Unmarshal(b, &v); err != nil {
		// unreadable entry is a miss; the next write replaces it
		return "", false, nil
	}
	return v.Status, true, nil
}
