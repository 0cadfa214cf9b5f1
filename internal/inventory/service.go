package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/futura-orders/internal/kafka"
	"github.com/ariefcatur/futura-orders/internal/logx"
	"github.com/ariefcatur/futura-orders/internal/orders"
	"github.com/ariefcatur/futura-orders/internal/redisx"
)

// projectStock writes stock:{id} only when the event is not older than the
// one already projected. Workers handle events for one product in any order,
// and a confirmation's stock row lock orders commits, so occurred_at orders
// levels for the same product.
var projectStock = redis.NewScript(`
local at = redis.call('HGET', KEYS[1], 'at')
if at and tonumber(at) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'stock', ARGV[1], 'at', ARGV[2])
return 1
`)

// Service projects stock levels out of order.confirmed events and raises a
// StockLow event when a product drops to the threshold or below.
type Service struct {
	Redis             *redis.Client
	Events            orders.Publisher
	ServiceName       string
	LowStockThreshold int
}

// HandleOrderConfirmed is installed as the consumer handler.
func (s *Service) HandleOrderConfirmed(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message: log and commit past it
		logx.FromCtx(ctx).Error("skip undecodable message", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventOrderConfirmed {
		return nil
	}
	log := logx.FromCtx(ctx).With("event_id", env.EventID, "order_id", env.CorrelationID)

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !fresh {
		log.Debug("duplicate event")
		return nil
	}

	if err := s.project(ctx, env); err != nil {
		// let a redelivery try again
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	return nil
}

func (s *Service) project(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderConfirmedPayload](env.Payload)
	if err != nil {
		return err
	}

	at := env.OccurredAt.UnixMicro()
	for _, it := range p.Items {
		applied, err := projectStock.Run(ctx, s.Redis, []string{fmt.Sprintf(redisx.KeyStock, it.ProductID)}, it.RemainingStock, at).Bool()
		if err != nil {
			return fmt.Errorf("project stock of product %d: %w", it.ProductID, err)
		}
		if !applied {
			logx.FromCtx(ctx).Debug("stale stock level", "product_id", it.ProductID, "remaining", it.RemainingStock)
			continue
		}
		if it.RemainingStock > s.LowStockThreshold {
			continue
		}
		logx.FromCtx(ctx).Warn("stock low", "product_id", it.ProductID, "remaining", it.RemainingStock)
		if s.Events == nil {
			continue
		}
		ev, err := orders.NewEnvelope(orders.EventStockLow, s.ServiceName, env.TraceID, p.OrderID, orders.StockLowPayload{
			ProductID: it.ProductID,
			Remaining: it.RemainingStock,
			Threshold: s.LowStockThreshold,
			OrderID:   p.OrderID,
		})
		if err != nil {
			return err
		}
		key := []byte(strconv.FormatInt(it.ProductID, 10))
		if err := s.Events.Publish(ctx, orders.TopicStockLow, key, ev); err != nil {
			return fmt.Errorf("publish stock low: %w", err)
		}
	}
	return nil
}

// StockLevel returns the projected stock of a product; ok is false when no
// confirmation for it has been seen yet.
func (s *Service) StockLevel(ctx context.Context, productID int64) (int, bool, error) {
	n, err := s.Redis.HGet(ctx, fmt.Sprintf(redisx.KeyStock, productID), "stock").Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
