package rental

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrPlanNotFound  = errors.New("plan not found")
	ErrUnitNotFound  = errors.New("inventory unit not found")

	// ErrLockTimeout: a confirmation waited longer than the configured
	// lock_timeout for a contended unit row. Retryable by re-confirming.
	ErrLockTimeout = errors.New("allocation timed out waiting for inventory lock")

	// ErrUnitHasBookings: the unit still has blocks ending today or later,
	// so deleting it would orphan live reservations.
	ErrUnitHasBookings = errors.New("inventory unit has active or future bookings")
)

// ValidationError rejects malformed input before any transaction opens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PreconditionError rejects a lifecycle transition attempted from the wrong
// source state. No state change, no side effect.
type PreconditionError struct {
	OrderID int64
	Want    Status
	Got     Status
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("order %d must be %s, is %s", e.OrderID, e.Want, e.Got)
}

// NoUnitError: allocation found no free unit of the product for the
// buffer-expanded window [Start, End]. The whole order rolls back.
type NoUnitError struct {
	ProductID int64
	Start     time.Time
	End       time.Time
}

func (e *NoUnitError) Error() string {
	return fmt.Sprintf("no available inventory for product %d from %s to %s",
		e.ProductID, FormatDate(e.Start), FormatDate(e.End))
}

// Retryable reports whether re-invoking the same confirmation later could
// succeed without any operator action.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
