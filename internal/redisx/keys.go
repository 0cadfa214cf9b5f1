package redisx

import "time"

const (
	// idem:order:create:{Idempotency-Key} -> order id ("0" while in flight)
	KeyIdemOrderCreate = "idem:order:create:%s"

	// order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%d"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// stock:{product_id} -> hash {stock, at}: remaining stock from the newest
	// order.confirmed seen, at = its occurred_at in unix microseconds
	KeyStock = "stock:%d"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
