package rental

import (
	"context"
	"time"
)

// NewOrder is a fully priced, fully dated order ready to persist. The
// service builds it from the request and the referenced plans.
type NewOrder struct {
	UserID      int64
	AddressID   *int64
	PaymentMode string
	DeliveryFee int
	TotalDue    int
	Items       []NewOrderItem
}

type NewOrderItem struct {
	ProductID int64
	PlanID    int64
	StartDate time.Time
	EndDate   time.Time
	ItemPrice int
}

// AllocatedUnit records one item binding made by Allocate. EndDate is the
// buffer-expanded end actually written to the block.
type AllocatedUnit struct {
	ItemID          int64
	ProductID       int64
	InventoryUnitID int64
	StartDate       time.Time
	EndDate         time.Time
}

type AllocationResult struct {
	Order Order
	Units []AllocatedUnit
}

// Store is the persistence boundary of the engine. The postgres
// implementation is authoritative (row-locking allocation); the memory
// implementation mirrors its observable semantics for tests and local runs.
type Store interface {
	// GetPlan returns ErrPlanNotFound when absent.
	GetPlan(ctx context.Context, planID int64) (Plan, error)

	// FreeUnitExists is the advisory availability check: true iff some unit
	// of the product has no block overlapping [start, bufferedEnd]. It
	// reserves nothing and takes no locks.
	FreeUnitExists(ctx context.Context, productID int64, start, bufferedEnd time.Time) (bool, error)

	// PlaceOrder persists the order and its items atomically with a fresh
	// collision-checked order number. No inventory effect.
	PlaceOrder(ctx context.Context, o NewOrder, placedAt time.Time) (Order, error)

	GetOrder(ctx context.Context, orderID int64) (Order, []OrderItem, error)
	ListUserOrders(ctx context.Context, userID int64) ([]Order, error)
	ListOrders(ctx context.Context, status Status, limit int) ([]Order, error)

	// Allocate runs the whole allocation transaction for a PLACED order:
	// per item (ascending id) pick and lock a free unit, bind it, write the
	// buffer-expanded block; then move the order to CONFIRMED. All or
	// nothing. Errors: ErrOrderNotFound, *PreconditionError,
	// *ValidationError (no items), *NoUnitError, ErrLockTimeout.
	Allocate(ctx context.Context, orderID int64) (AllocationResult, error)

	// Transition performs from -> to iff the order is currently in from,
	// otherwise *PreconditionError. Used for DELIVERED and CANCELLED.
	Transition(ctx context.Context, orderID int64, from, to Status) (Order, error)

	// CloseElapsed moves DELIVERED orders whose latest item end_date is
	// before today to CLOSED and returns their ids. Idempotent.
	CloseElapsed(ctx context.Context, today time.Time) ([]int64, error)

	AddUnit(ctx context.Context, productID int64) (InventoryUnit, error)
	ListUnits(ctx context.Context, productID int64, today time.Time) ([]UnitSummary, error)
	// DeleteUnit fails with ErrUnitHasBookings while any block of the unit
	// ends on or after today.
	DeleteUnit(ctx context.Context, unitID int64, today time.Time) error
}
