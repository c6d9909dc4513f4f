package rental

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderConfirmed     = "OrderConfirmed"
	EventAllocationRejected = "AllocationRejected"
	EventOrderDelivered     = "OrderDelivered"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderClosed        = "OrderClosed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload in an envelope v1. Marshal failures are
// programming errors on our own payload types, hence the panic.
func NewEnvelope(eventType, producer, traceID string, orderID int64, payload any) Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       b,
	}
}

// ---- payloads ----

type PlacedItem struct {
	ProductID int64  `json:"product_id"`
	PlanID    int64  `json:"plan_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	ItemPrice int    `json:"item_price"`
}

type OrderPlacedPayload struct {
	OrderID     int64        `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	UserID      int64        `json:"user_id"`
	TotalDue    int          `json:"total_due"`
	Items       []PlacedItem `json:"items"`
}

type AllocatedUnitPayload struct {
	OrderItemID     int64  `json:"order_item_id"`
	ProductID       int64  `json:"product_id"`
	InventoryUnitID int64  `json:"inventory_unit_id"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"` // buffer-expanded
}

type OrderConfirmedPayload struct {
	OrderID     int64                  `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	Units       []AllocatedUnitPayload `json:"units"`
}

type AllocationRejectedPayload struct {
	OrderID   int64  `json:"order_id"`
	Reason    string `json:"reason"` // NO_UNIT_AVAILABLE | LOCK_TIMEOUT
	ProductID int64  `json:"product_id,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// OrderStatusPayload covers the bookkeeping transitions: delivered,
// cancelled, closed.
type OrderStatusPayload struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      Status `json:"status"`
}

const (
	RejectReasonNoUnit      = "NO_UNIT_AVAILABLE"
	RejectReasonLockTimeout = "LOCK_TIMEOUT"
)
