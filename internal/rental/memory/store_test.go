package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infoanil/toy-rental-service/internal/rental"
)

func d(s string) time.Time {
	t, err := rental.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func seed(t *testing.T, s *Store, units int) (rental.Product, rental.Plan) {
	t.Helper()
	ctx := context.Background()
	p := s.SeedProduct("stacking rings")
	plan := s.SeedPlan(p.ID, 5, 300)
	for i := 0; i < units; i++ {
		_, err := s.AddUnit(ctx, p.ID)
		require.NoError(t, err)
	}
	return p, plan
}

func placed(t *testing.T, s *Store, items ...rental.NewOrderItem) rental.Order {
	t.Helper()
	o, err := s.PlaceOrder(context.Background(), rental.NewOrder{
		UserID:      1,
		PaymentMode: "IN_PERSON",
		Items:       items,
	}, d("2025-02-01"))
	require.NoError(t, err)
	return o
}

func item(productID, planID int64, start string) rental.NewOrderItem {
	s := d(start)
	return rental.NewOrderItem{
		ProductID: productID,
		PlanID:    planID,
		StartDate: s,
		EndDate:   rental.EndDate(s, 5),
		ItemPrice: 300,
	}
}

func TestAllocate_BindsLowestFreeUnit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 2)

	o := placed(t, s, item(p.ID, plan.ID, "2025-03-01"))
	res, err := s.Allocate(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, res.Units, 1)
	assert.Equal(t, int64(1), res.Units[0].InventoryUnitID)
	assert.Equal(t, d("2025-03-06"), res.Units[0].EndDate)

	// Same window again lands on the second unit.
	o2 := placed(t, s, item(p.ID, plan.ID, "2025-03-01"))
	res2, err := s.Allocate(ctx, o2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res2.Units[0].InventoryUnitID)
}

func TestAllocate_TwoItemsSameProductGetDistinctUnits(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 2)

	o := placed(t, s,
		item(p.ID, plan.ID, "2025-03-01"),
		item(p.ID, plan.ID, "2025-03-01"),
	)
	res, err := s.Allocate(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, res.Units, 2)
	assert.NotEqual(t, res.Units[0].InventoryUnitID, res.Units[1].InventoryUnitID)
}

func TestAllocate_FailureStagesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 1)

	// Two items against one unit in the same window: nothing commits.
	o := placed(t, s,
		item(p.ID, plan.ID, "2025-03-01"),
		item(p.ID, plan.ID, "2025-03-01"),
	)
	_, err := s.Allocate(ctx, o.ID)
	var ne *rental.NoUnitError
	require.ErrorAs(t, err, &ne)
	assert.Empty(t, s.Blocks())

	got, items, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusPlaced, got.Status)
	for _, it := range items {
		assert.Nil(t, it.InventoryUnitID)
	}
}

func TestAllocate_EmptyOrderRejected(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	o := placed(t, s)

	_, err := s.Allocate(ctx, o.ID)
	var ve *rental.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestFreeUnitExists_RespectsCommittedBlocks(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 1)

	o := placed(t, s, item(p.ID, plan.ID, "2025-03-01"))
	_, err := s.Allocate(ctx, o.ID)
	require.NoError(t, err)

	// Block occupies 03-01..03-06.
	ok, err := s.FreeUnitExists(ctx, p.ID, d("2025-03-06"), d("2025-03-10"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.FreeUnitExists(ctx, p.ID, d("2025-03-07"), d("2025-03-11"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransition_ChecksCurrentStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 1)
	o := placed(t, s, item(p.ID, plan.ID, "2025-03-01"))

	_, err := s.Transition(ctx, o.ID, rental.StatusConfirmed, rental.StatusDelivered)
	var pe *rental.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, rental.StatusPlaced, pe.Got)

	got, err := s.Transition(ctx, o.ID, rental.StatusPlaced, rental.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusCancelled, got.Status)

	_, err = s.Transition(ctx, 999, rental.StatusPlaced, rental.StatusCancelled)
	assert.ErrorIs(t, err, rental.ErrOrderNotFound)
}

func TestCloseElapsed_UsesUnbufferedItemEnd(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 1)

	// Item ends 2025-01-05; its block runs through 01-06 buffered. The
	// sweep keys off the raw item end, so 01-06 already closes it.
	o := placed(t, s, item(p.ID, plan.ID, "2025-01-01"))
	_, err := s.Allocate(ctx, o.ID)
	require.NoError(t, err)
	_, err = s.Transition(ctx, o.ID, rental.StatusConfirmed, rental.StatusDelivered)
	require.NoError(t, err)

	ids, err := s.CloseElapsed(ctx, d("2025-01-05"))
	require.NoError(t, err)
	assert.Empty(t, ids) // end date not yet past

	ids, err = s.CloseElapsed(ctx, d("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, []int64{o.ID}, ids)

	ids, err = s.CloseElapsed(ctx, d("2025-01-07"))
	require.NoError(t, err)
	assert.Empty(t, ids) // already closed
}

func TestListOrders_FilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 3)

	var last rental.Order
	for i := 0; i < 3; i++ {
		last = placed(t, s, item(p.ID, plan.ID, "2025-03-01"))
	}
	_, err := s.Allocate(ctx, last.ID)
	require.NoError(t, err)

	all, err := s.ListOrders(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID) // newest first

	placedOnly, err := s.ListOrders(ctx, rental.StatusPlaced, 100)
	require.NoError(t, err)
	assert.Len(t, placedOnly, 2)

	capped, err := s.ListOrders(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestDeleteUnit_BlockedWhileBooked(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 1)

	o := placed(t, s, item(p.ID, plan.ID, "2025-03-01"))
	res, err := s.Allocate(ctx, o.ID)
	require.NoError(t, err)
	unitID := res.Units[0].InventoryUnitID

	// Block runs through 2025-03-06.
	assert.ErrorIs(t, s.DeleteUnit(ctx, unitID, d("2025-03-06")), rental.ErrUnitHasBookings)
	assert.NoError(t, s.DeleteUnit(ctx, unitID, d("2025-03-07")))
	assert.ErrorIs(t, s.DeleteUnit(ctx, unitID, d("2025-03-07")), rental.ErrUnitNotFound)
}

func TestListUnits_CountsActiveBlocks(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{BufferDays: 1})
	p, plan := seed(t, s, 2)

	o := placed(t, s, item(p.ID, plan.ID, "2025-03-01"))
	_, err := s.Allocate(ctx, o.ID)
	require.NoError(t, err)

	units, err := s.ListUnits(ctx, p.ID, d("2025-03-01"))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, 1, units[0].ActiveBlocks)
	assert.Equal(t, 0, units[1].ActiveBlocks)

	// Once the block is in the past it no longer counts.
	units, err = s.ListUnits(ctx, p.ID, d("2025-04-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, units[0].ActiveBlocks)
}
