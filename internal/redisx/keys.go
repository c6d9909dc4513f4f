package redisx

import "time"

const (
	// Cache of an order's lifecycle status: order_status:{order_id} ->
	// {"status":"..."}. DB stays the source of truth.
	KeyOrderStatus = "order_status:%d"

	// Dedup for event processing: dedup:{service}:{event_id}.
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
