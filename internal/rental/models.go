package rental

import "time"

type Product struct {
	ID     int64
	Title  string
	Slug   string
	Active bool
}

// Plan is a priced rental duration offered for a product. Read-only for the
// engine; it supplies duration_days and price_inr at checkout.
type Plan struct {
	ID           int64
	ProductID    int64
	DurationDays int
	PriceINR     int
}

// UnitStatusAvailable is display-only. Booking authority lives in
// availability blocks, never in this field.
const UnitStatusAvailable = "AVAILABLE"

type InventoryUnit struct {
	ID        int64
	ProductID int64
	Status    string
}

// UnitSummary is the admin listing view of a unit: the unit plus how many
// of its blocks still end today or later.
type UnitSummary struct {
	InventoryUnit
	ActiveBlocks int
}

const BlockTypeRental = "RENTAL"

// AvailabilityBlock is an exclusive claim on a unit for the inclusive range
// [StartDate, EndDate]. EndDate is stored already expanded by the
// sanitization buffer. For a fixed unit no two blocks may overlap.
type AvailabilityBlock struct {
	ID              int64
	InventoryUnitID int64
	StartDate       time.Time
	EndDate         time.Time
	Type            string
	OrderID         int64
}

type Order struct {
	ID          int64
	OrderNumber string
	UserID      int64
	AddressID   *int64
	Status      Status
	PaymentMode string
	DeliveryFee int
	TotalDue    int
	PlacedAt    time.Time
}

type OrderItem struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	PlanID          int64
	StartDate       time.Time
	EndDate         time.Time
	ItemPrice       int
	InventoryUnitID *int64
}
