// Package memory implements rental.Store entirely in process. A single
// mutex serializes allocation, which preserves the observable semantics of
// the postgres row-locking discipline. Used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/infoanil/toy-rental-service/internal/rental"
)

type Config struct {
	BufferDays int
}

type Store struct {
	mu     sync.Mutex
	buffer int

	seq      map[string]int64
	products map[int64]rental.Product
	plans    map[int64]rental.Plan
	units    map[int64]rental.InventoryUnit
	orders   map[int64]*rental.Order
	items    map[int64][]rental.OrderItem // by order id, ascending item id
	blocks   []rental.AvailabilityBlock

	numbers map[string]bool
}

func NewStore(cfg Config) *Store {
	return &Store{
		buffer:   cfg.BufferDays,
		seq:      map[string]int64{},
		products: map[int64]rental.Product{},
		plans:    map[int64]rental.Plan{},
		units:    map[int64]rental.InventoryUnit{},
		orders:   map[int64]*rental.Order{},
		items:    map[int64][]rental.OrderItem{},
		numbers:  map[string]bool{},
	}
}

func (s *Store) next(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

// ---- seeding (tests, local dev) ----

func (s *Store) SeedProduct(title string) rental.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := rental.Product{ID: s.next("product"), Title: title, Active: true}
	s.products[p.ID] = p
	return p
}

func (s *Store) SeedPlan(productID int64, durationDays, priceINR int) rental.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := rental.Plan{ID: s.next("plan"), ProductID: productID, DurationDays: durationDays, PriceINR: priceINR}
	s.plans[p.ID] = p
	return p
}

// Blocks returns a copy of all committed blocks, for invariant checks.
func (s *Store) Blocks() []rental.AvailabilityBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rental.AvailabilityBlock, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// ---- rental.Store ----

func (s *Store) GetPlan(_ context.Context, planID int64) (rental.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return rental.Plan{}, rental.ErrPlanNotFound
	}
	return p, nil
}

func (s *Store) FreeUnitExists(_ context.Context, productID int64, start, bufferedEnd time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.freeUnit(productID, start, bufferedEnd, nil)
	return ok, nil
}

// freeUnit picks the lowest-id unit of the product with no overlapping
// block, considering both committed blocks and the staged ones of an
// in-flight allocation. Caller holds the lock.
func (s *Store) freeUnit(productID int64, start, bufferedEnd time.Time, staged []rental.AvailabilityBlock) (int64, bool) {
	ids := make([]int64, 0, len(s.units))
	for id, u := range s.units {
		if u.ProductID == productID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

unit:
	for _, id := range ids {
		for _, b := range s.blocks {
			if b.InventoryUnitID == id && rental.Overlaps(b.StartDate, b.EndDate, start, bufferedEnd) {
				continue unit
			}
		}
		for _, b := range staged {
			if b.InventoryUnitID == id && rental.Overlaps(b.StartDate, b.EndDate, start, bufferedEnd) {
				continue unit
			}
		}
		return id, true
	}
	return 0, false
}

func (s *Store) PlaceOrder(_ context.Context, o rental.NewOrder, placedAt time.Time) (rental.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	number := rental.NewOrderNumber(placedAt)
	for s.numbers[number] {
		number = rental.NewOrderNumber(placedAt)
	}
	s.numbers[number] = true

	ord := rental.Order{
		ID:          s.next("order"),
		OrderNumber: number,
		UserID:      o.UserID,
		AddressID:   o.AddressID,
		Status:      rental.StatusPlaced,
		PaymentMode: o.PaymentMode,
		DeliveryFee: o.DeliveryFee,
		TotalDue:    o.TotalDue,
		PlacedAt:    placedAt,
	}
	s.orders[ord.ID] = &ord

	for _, it := range o.Items {
		s.items[ord.ID] = append(s.items[ord.ID], rental.OrderItem{
			ID:        s.next("item"),
			OrderID:   ord.ID,
			ProductID: it.ProductID,
			PlanID:    it.PlanID,
			StartDate: it.StartDate,
			EndDate:   it.EndDate,
			ItemPrice: it.ItemPrice,
		})
	}
	return ord, nil
}

func (s *Store) Allocate(_ context.Context, orderID int64) (rental.AllocationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return rental.AllocationResult{}, rental.ErrOrderNotFound
	}
	if o.Status != rental.StatusPlaced {
		return rental.AllocationResult{}, &rental.PreconditionError{OrderID: orderID, Want: rental.StatusPlaced, Got: o.Status}
	}
	items := s.items[orderID]
	if len(items) == 0 {
		return rental.AllocationResult{}, &rental.ValidationError{Field: "items", Reason: "order has no items"}
	}

	// Stage every binding first; nothing is applied until all items fit.
	var staged []rental.AvailabilityBlock
	var units []rental.AllocatedUnit
	for _, it := range items {
		bufEnd := rental.Buffered(it.EndDate, s.buffer)
		unitID, ok := s.freeUnit(it.ProductID, it.StartDate, bufEnd, staged)
		if !ok {
			return rental.AllocationResult{}, &rental.NoUnitError{ProductID: it.ProductID, Start: it.StartDate, End: bufEnd}
		}
		staged = append(staged, rental.AvailabilityBlock{
			ID:              s.next("block"),
			InventoryUnitID: unitID,
			StartDate:       it.StartDate,
			EndDate:         bufEnd,
			Type:            rental.BlockTypeRental,
			OrderID:         orderID,
		})
		units = append(units, rental.AllocatedUnit{
			ItemID:          it.ID,
			ProductID:       it.ProductID,
			InventoryUnitID: unitID,
			StartDate:       it.StartDate,
			EndDate:         bufEnd,
		})
	}

	s.blocks = append(s.blocks, staged...)
	for i := range items {
		id := units[i].InventoryUnitID
		s.items[orderID][i].InventoryUnitID = &id
	}
	o.Status = rental.StatusConfirmed

	return rental.AllocationResult{Order: *o, Units: units}, nil
}

func (s *Store) Transition(_ context.Context, orderID int64, from, to rental.Status) (rental.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return rental.Order{}, rental.ErrOrderNotFound
	}
	if o.Status != from {
		return rental.Order{}, &rental.PreconditionError{OrderID: orderID, Want: from, Got: o.Status}
	}
	o.Status = to
	return *o, nil
}

func (s *Store) CloseElapsed(_ context.Context, today time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, o := range s.orders {
		if o.Status != rental.StatusDelivered || len(s.items[id]) == 0 {
			continue
		}
		elapsed := true
		for _, it := range s.items[id] {
			if !it.EndDate.Before(today) {
				elapsed = false
				break
			}
		}
		if elapsed {
			o.Status = rental.StatusClosed
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) GetOrder(_ context.Context, orderID int64) (rental.Order, []rental.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return rental.Order{}, nil, rental.ErrOrderNotFound
	}
	items := make([]rental.OrderItem, len(s.items[orderID]))
	copy(items, s.items[orderID])
	return *o, items, nil
}

func (s *Store) ListUserOrders(_ context.Context, userID int64) ([]rental.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []rental.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListOrders(_ context.Context, status rental.Status, limit int) ([]rental.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []rental.Order
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AddUnit(_ context.Context, productID int64) (rental.InventoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := rental.InventoryUnit{ID: s.next("unit"), ProductID: productID, Status: rental.UnitStatusAvailable}
	s.units[u.ID] = u
	return u, nil
}

func (s *Store) ListUnits(_ context.Context, productID int64, today time.Time) ([]rental.UnitSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []rental.UnitSummary
	for _, u := range s.units {
		if u.ProductID != productID {
			continue
		}
		sum := rental.UnitSummary{InventoryUnit: u}
		for _, b := range s.blocks {
			if b.InventoryUnitID == u.ID && !b.EndDate.Before(today) {
				sum.ActiveBlocks++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteUnit(_ context.Context, unitID int64, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.units[unitID]; !ok {
		return rental.ErrUnitNotFound
	}
	for _, b := range s.blocks {
		if b.InventoryUnitID == unitID && !b.EndDate.Before(today) {
			return rental.ErrUnitHasBookings
		}
	}
	delete(s.units, unitID)
	return nil
}
