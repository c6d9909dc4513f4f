package rental

import (
	"context"
	"time"
)

// Config carries the engine knobs explicitly; the engine never reads the
// environment itself.
type Config struct {
	BufferDays  int
	DeliveryFee int
	PaymentMode string
}

// Service is the availability & reservation engine. Everything stateful
// goes through the Store; the service validates input, prices orders from
// plans and applies the sanitization buffer.
type Service struct {
	store  Store
	buffer int
	fee    int
	mode   string
	now    func() time.Time
}

func NewService(store Store, cfg Config) *Service {
	mode := cfg.PaymentMode
	if mode == "" {
		mode = "IN_PERSON"
	}
	return &Service{
		store:  store,
		buffer: cfg.BufferDays,
		fee:    cfg.DeliveryFee,
		mode:   mode,
		now:    time.Now,
	}
}

// WithClock fixes the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) BufferDays() int { return s.buffer }

func (s *Service) today() time.Time { return DateOnly(s.now()) }

type Availability struct {
	ProductID  int64
	StartDate  time.Time
	EndDate    time.Time
	BufferDays int
	Available  bool
}

// CheckAvailability is the advisory read path: is any unit of the product
// free for [start, start+days-1]? It takes no locks, so the answer can go
// stale before a later confirmation.
func (s *Service) CheckAvailability(ctx context.Context, productID int64, start time.Time, days int) (Availability, error) {
	if productID <= 0 {
		return Availability{}, &ValidationError{Field: "product_id", Reason: "must be positive"}
	}
	if start.IsZero() {
		return Availability{}, &ValidationError{Field: "start", Reason: "required"}
	}
	if days < 1 {
		return Availability{}, &ValidationError{Field: "days", Reason: "must be at least 1"}
	}

	start = DateOnly(start)
	end := EndDate(start, days)
	ok, err := s.store.FreeUnitExists(ctx, productID, start, Buffered(end, s.buffer))
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ProductID:  productID,
		StartDate:  start,
		EndDate:    end,
		BufferDays: s.buffer,
		Available:  ok,
	}, nil
}

type PlaceOrderItem struct {
	ProductID int64
	PlanID    int64
	StartDate time.Time
}

type PlaceOrderRequest struct {
	UserID    int64
	AddressID *int64
	Items     []PlaceOrderItem
}

// PlaceOrder prices the requested items from their plans and persists a
// PLACED order. No inventory is touched; allocation happens at confirm time.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Order, []OrderItem, error) {
	if req.UserID <= 0 {
		return Order{}, nil, &ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	if len(req.Items) == 0 {
		return Order{}, nil, &ValidationError{Field: "items", Reason: "at least one item required"}
	}

	no := NewOrder{
		UserID:      req.UserID,
		AddressID:   req.AddressID,
		PaymentMode: s.mode,
		DeliveryFee: s.fee,
	}
	for _, it := range req.Items {
		if it.ProductID <= 0 {
			return Order{}, nil, &ValidationError{Field: "product_id", Reason: "must be positive"}
		}
		if it.StartDate.IsZero() {
			return Order{}, nil, &ValidationError{Field: "start_date", Reason: "required"}
		}
		plan, err := s.store.GetPlan(ctx, it.PlanID)
		if err != nil {
			return Order{}, nil, err
		}
		if plan.ProductID != it.ProductID {
			return Order{}, nil, &ValidationError{Field: "plan_id", Reason: "plan does not belong to product"}
		}
		start := DateOnly(it.StartDate)
		no.Items = append(no.Items, NewOrderItem{
			ProductID: it.ProductID,
			PlanID:    plan.ID,
			StartDate: start,
			EndDate:   EndDate(start, plan.DurationDays),
			ItemPrice: plan.PriceINR,
		})
		no.TotalDue += plan.PriceINR
	}
	no.TotalDue += s.fee

	o, err := s.store.PlaceOrder(ctx, no, s.now().UTC())
	if err != nil {
		return Order{}, nil, err
	}
	_, items, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

// Confirm runs the allocation transaction: PLACED -> CONFIRMED with every
// item bound to a locked free unit, or no change at all.
func (s *Service) Confirm(ctx context.Context, orderID int64) (AllocationResult, error) {
	if orderID <= 0 {
		return AllocationResult{}, &ValidationError{Field: "order_id", Reason: "must be positive"}
	}
	return s.store.Allocate(ctx, orderID)
}

// MarkDelivered: CONFIRMED -> DELIVERED. The block already reserves the
// window, so this is bookkeeping only.
func (s *Service) MarkDelivered(ctx context.Context, orderID int64) (Order, error) {
	return s.store.Transition(ctx, orderID, StatusConfirmed, StatusDelivered)
}

// Cancel: PLACED -> CANCELLED. Nothing was allocated yet, so there is
// nothing to release. Later states cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID int64) (Order, error) {
	return s.store.Transition(ctx, orderID, StatusPlaced, StatusCancelled)
}

// CloseElapsed moves DELIVERED orders whose rentals fully elapsed (latest
// item end_date before today, unbuffered) to CLOSED.
func (s *Service) CloseElapsed(ctx context.Context) ([]int64, error) {
	return s.store.CloseElapsed(ctx, s.today())
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, []OrderItem, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) ListUserOrders(ctx context.Context, userID int64) ([]Order, error) {
	return s.store.ListUserOrders(ctx, userID)
}

func (s *Service) ListOrders(ctx context.Context, status Status, limit int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.store.ListOrders(ctx, status, limit)
}

func (s *Service) AddUnit(ctx context.Context, productID int64) (InventoryUnit, error) {
	if productID <= 0 {
		return InventoryUnit{}, &ValidationError{Field: "product_id", Reason: "must be positive"}
	}
	return s.store.AddUnit(ctx, productID)
}

func (s *Service) ListUnits(ctx context.Context, productID int64) ([]UnitSummary, error) {
	return s.store.ListUnits(ctx, productID, s.today())
}

// RemoveUnit deletes a unit unless it still backs live bookings.
func (s *Service) RemoveUnit(ctx context.Context, unitID int64) error {
	return s.store.DeleteUnit(ctx, unitID, s.today())
}
