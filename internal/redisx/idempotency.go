package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const inFlight = "0"

// Idempotency remembers which order a create request with a given
// Idempotency-Key produced.
type Idempotency struct {
	RDB *redis.Client
	TTL time.Duration
}

func (i *Idempotency) ttl() time.Duration {
	if i.TTL > 0 {
		return i.TTL
	}
	return TTLIdempotency
}

// Claim takes the key for a new request. When the key is already taken,
// claimed is false and orderID is the order it produced, or 0 while the
// first request is still running.
func (i *Idempotency) Claim(ctx context.Context, key string) (orderID int64, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	ok, err := i.RDB.SetNX(ctx, k, inFlight, i.ttl()).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = i.RDB.SetNX(ctx, k, inFlight, i.ttl()).Result()
		return 0, ok, err
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency key %s holds %q", key, v)
	}
	return id, false, nil
}

func (i *Idempotency) Complete(ctx context.Context, key string, orderID int64) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), strconv.FormatInt(orderID, 10), i.ttl()).Err()
}

// Abandon frees the key after a failed request so the client can retry.
func (i *Idempotency) Abandon(ctx context.Context, key string) error {
	return i.RDB.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Err()
}
