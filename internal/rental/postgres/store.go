// Package postgres implements rental.Store on pgx. It is the authoritative
// implementation: the no-overlap invariant is enforced by the allocation
// transaction's FOR UPDATE discipline on inventory_units rows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infoanil/toy-rental-service/internal/rental"
)

type Config struct {
	BufferDays  int
	LockTimeout time.Duration
}

type Store struct {
	pool        *pgxpool.Pool
	buffer      int
	lockTimeout time.Duration
}

func NewStore(pool *pgxpool.Pool, cfg Config) *Store {
	return &Store{pool: pool, buffer: cfg.BufferDays, lockTimeout: cfg.LockTimeout}
}

const (
	pgLockNotAvailable = "55P03"
	pgUniqueViolation  = "23505"
)

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (s *Store) GetPlan(ctx context.Context, planID int64) (rental.Plan, error) {
	var p rental.Plan
	err := s.pool.QueryRow(ctx, `
		SELECT id, product_id, duration_days, price_inr
		FROM product_plans WHERE id=$1`, planID).
		Scan(&p.ID, &p.ProductID, &p.DurationDays, &p.PriceINR)
	if errors.Is(err, pgx.ErrNoRows) {
		return rental.Plan{}, rental.ErrPlanNotFound
	}
	return p, err
}

// freeUnitSQL picks the lowest-id unit of the product with no block
// overlapping the buffer-expanded candidate window ($2 = buffered end,
// $3 = start), skipping the ids in $4. Allocation appends "FOR UPDATE OF iu"
// to lock the row.
const freeUnitSQL = `
	SELECT iu.id
	FROM inventory_units iu
	WHERE iu.product_id = $1
	  AND iu.id <> ALL($4)
	  AND NOT EXISTS (
	    SELECT 1 FROM availability_blocks ab
	    WHERE ab.inventory_unit_id = iu.id
	      AND ab.start_date <= $2
	      AND ab.end_date   >= $3
	  )
	ORDER BY iu.id
	LIMIT 1`

// unitBusySQL re-checks one locked unit for an overlapping block.
const unitBusySQL = `
	SELECT 1 FROM availability_blocks
	WHERE inventory_unit_id = $1
	  AND start_date <= $2
	  AND end_date   >= $3
	LIMIT 1`

func (s *Store) FreeUnitExists(ctx context.Context, productID int64, start, bufferedEnd time.Time) (bool, error) {
	var unitID int64
	err := s.pool.QueryRow(ctx, freeUnitSQL, productID, bufferedEnd, start, []int64{}).Scan(&unitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) PlaceOrder(ctx context.Context, o rental.NewOrder, placedAt time.Time) (rental.Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return rental.Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := rental.Order{
		UserID:      o.UserID,
		AddressID:   o.AddressID,
		Status:      rental.StatusPlaced,
		PaymentMode: o.PaymentMode,
		DeliveryFee: o.DeliveryFee,
		TotalDue:    o.TotalDue,
		PlacedAt:    placedAt,
	}

	// Collision-retry on the human-facing code. The unique index is the
	// arbiter; each attempt runs under a savepoint so a duplicate does not
	// abort the surrounding transaction.
	for attempt := 0; ; attempt++ {
		out.OrderNumber = rental.NewOrderNumber(placedAt)

		sp, err := tx.Begin(ctx)
		if err != nil {
			return rental.Order{}, err
		}
		err = sp.QueryRow(ctx, `
			INSERT INTO orders(order_number, user_id, address_id, status, payment_mode, delivery_fee, total_due, placed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`,
			out.OrderNumber, o.UserID, o.AddressID, rental.StatusPlaced, o.PaymentMode, o.DeliveryFee, o.TotalDue, placedAt).
			Scan(&out.ID)
		if err == nil {
			if err = sp.Commit(ctx); err != nil {
				return rental.Order{}, err
			}
			break
		}
		_ = sp.Rollback(ctx)
		if !isPgCode(err, pgUniqueViolation) {
			return rental.Order{}, err
		}
		if attempt >= 5 {
			return rental.Order{}, fmt.Errorf("order number collision retry exhausted")
		}
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, plan_id, start_date, end_date, item_price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			out.ID, it.ProductID, it.PlanID, it.StartDate, it.EndDate, it.ItemPrice)
		if err != nil {
			return rental.Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return rental.Order{}, err
	}
	return out, nil
}

// Allocate binds every item of a PLACED order to a locked free unit and
// writes the buffer-expanded blocks, all inside one transaction. Items are
// processed in ascending id so lock acquisition order is deterministic. Any
// failure rolls back every binding made in this attempt.
func (s *Store) Allocate(ctx context.Context, orderID int64) (rental.AllocationResult, error) {
	var res rental.AllocationResult

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds()))
		if err != nil {
			return res, err
		}
	}

	// Lock the order row first: concurrent confirms of the same order
	// serialize here, and the loser sees CONFIRMED and bails out.
	o, err := scanOrder(tx.QueryRow(ctx, selectOrderSQL+` WHERE id=$1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return res, rental.ErrOrderNotFound
	}
	if err != nil {
		return res, err
	}
	if o.Status != rental.StatusPlaced {
		return res, &rental.PreconditionError{OrderID: orderID, Want: rental.StatusPlaced, Got: o.Status}
	}

	items, err := s.orderItems(ctx, tx, orderID)
	if err != nil {
		return res, err
	}
	if len(items) == 0 {
		return res, &rental.ValidationError{Field: "items", Reason: "order has no items"}
	}

	for _, it := range items {
		bufEnd := rental.Buffered(it.EndDate, s.buffer)

		unitID, err := s.lockFreeUnit(ctx, tx, it.ProductID, it.StartDate, bufEnd)
		if err != nil {
			return rental.AllocationResult{}, err
		}

		if _, err = tx.Exec(ctx, `UPDATE order_items SET inventory_unit_id=$1 WHERE id=$2`, unitID, it.ID); err != nil {
			return rental.AllocationResult{}, err
		}
		if _, err = tx.Exec(ctx, `
			INSERT INTO availability_blocks(inventory_unit_id, start_date, end_date, type, order_id)
			VALUES ($1,$2,$3,$4,$5)`,
			unitID, it.StartDate, bufEnd, rental.BlockTypeRental, orderID); err != nil {
			return rental.AllocationResult{}, err
		}

		res.Units = append(res.Units, rental.AllocatedUnit{
			ItemID:          it.ID,
			ProductID:       it.ProductID,
			InventoryUnitID: unitID,
			StartDate:       it.StartDate,
			EndDate:         bufEnd,
		})
	}

	if _, err = tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, orderID, rental.StatusConfirmed); err != nil {
		return rental.AllocationResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		if isPgCode(err, pgLockNotAvailable) {
			return rental.AllocationResult{}, rental.ErrLockTimeout
		}
		return rental.AllocationResult{}, err
	}

	o.Status = rental.StatusConfirmed
	res.Order = o
	return res, nil
}

// lockFreeUnit picks and row-locks a free unit of the product for the
// buffered window. Under READ COMMITTED the candidate SELECT takes its
// snapshot before blocking on a competitor's row lock, so a block committed
// while we waited is invisible to it; the locked row is returned unmodified
// and no qual recheck happens. The unit is therefore re-checked on a fresh
// statement snapshot after the lock is held, and conflicted candidates are
// skipped.
func (s *Store) lockFreeUnit(ctx context.Context, tx pgx.Tx, productID int64, start, bufEnd time.Time) (int64, error) {
	// Must stay non-nil: a NULL array makes "<> ALL" filter every row.
	skip := []int64{}
	for {
		var unitID int64
		err := tx.QueryRow(ctx, freeUnitSQL+` FOR UPDATE OF iu`, productID, bufEnd, start, skip).Scan(&unitID)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &rental.NoUnitError{ProductID: productID, Start: start, End: bufEnd}
		}
		if isPgCode(err, pgLockNotAvailable) {
			return 0, rental.ErrLockTimeout
		}
		if err != nil {
			return 0, err
		}

		var busy int
		err = tx.QueryRow(ctx, unitBusySQL, unitID, bufEnd, start).Scan(&busy)
		if errors.Is(err, pgx.ErrNoRows) {
			return unitID, nil
		}
		if err != nil {
			return 0, err
		}
		skip = append(skip, unitID)
	}
}

func (s *Store) Transition(ctx context.Context, orderID int64, from, to rental.Status) (rental.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `
		UPDATE orders SET status=$3 WHERE id=$1 AND status=$2
		RETURNING id, order_number, user_id, address_id, status, payment_mode, delivery_fee, total_due, placed_at`,
		orderID, from, to))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return rental.Order{}, err
	}

	// Nothing matched: distinguish absent from wrong state.
	var got rental.Status
	err = s.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return rental.Order{}, rental.ErrOrderNotFound
	}
	if err != nil {
		return rental.Order{}, err
	}
	return rental.Order{}, &rental.PreconditionError{OrderID: orderID, Want: from, Got: got}
}

func (s *Store) CloseElapsed(ctx context.Context, today time.Time) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE orders o SET status=$2
		WHERE o.status=$1
		  AND EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id)
		  AND NOT EXISTS (
		    SELECT 1 FROM order_items oi
		    WHERE oi.order_id = o.id AND oi.end_date >= $3
		  )
		RETURNING o.id`,
		rental.StatusDelivered, rental.StatusClosed, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const selectOrderSQL = `
	SELECT id, order_number, user_id, address_id, status, payment_mode, delivery_fee, total_due, placed_at
	FROM orders`

func scanOrder(row pgx.Row) (rental.Order, error) {
	var o rental.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.AddressID, &o.Status,
		&o.PaymentMode, &o.DeliveryFee, &o.TotalDue, &o.PlacedAt)
	return o, err
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (rental.Order, []rental.OrderItem, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, selectOrderSQL+` WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rental.Order{}, nil, rental.ErrOrderNotFound
	}
	if err != nil {
		return rental.Order{}, nil, err
	}
	items, err := s.orderItems(ctx, s.pool, orderID)
	if err != nil {
		return rental.Order{}, nil, err
	}
	return o, items, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) orderItems(ctx context.Context, q querier, orderID int64) ([]rental.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, plan_id, start_date, end_date, item_price, inventory_unit_id
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []rental.OrderItem
	for rows.Next() {
		var it rental.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.PlanID,
			&it.StartDate, &it.EndDate, &it.ItemPrice, &it.InventoryUnitID); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) ListUserOrders(ctx context.Context, userID int64) ([]rental.Order, error) {
	return s.listOrders(ctx, selectOrderSQL+` WHERE user_id=$1 ORDER BY id DESC`, userID)
}

func (s *Store) ListOrders(ctx context.Context, status rental.Status, limit int) ([]rental.Order, error) {
	if status == "" {
		return s.listOrders(ctx, selectOrderSQL+` ORDER BY id DESC LIMIT $1`, limit)
	}
	return s.listOrders(ctx, selectOrderSQL+` WHERE status=$1 ORDER BY id DESC LIMIT $2`, status, limit)
}

func (s *Store) listOrders(ctx context.Context, sql string, args ...any) ([]rental.Order, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rental.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) AddUnit(ctx context.Context, productID int64) (rental.InventoryUnit, error) {
	u := rental.InventoryUnit{ProductID: productID, Status: rental.UnitStatusAvailable}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO inventory_units(product_id, status) VALUES ($1,$2) RETURNING id`,
		productID, rental.UnitStatusAvailable).Scan(&u.ID)
	return u, err
}

func (s *Store) ListUnits(ctx context.Context, productID int64, today time.Time) ([]rental.UnitSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT iu.id, iu.product_id, iu.status,
		       COUNT(ab.id) FILTER (WHERE ab.end_date >= $2) AS active_blocks
		FROM inventory_units iu
		LEFT JOIN availability_blocks ab ON ab.inventory_unit_id = iu.id
		WHERE iu.product_id = $1
		GROUP BY iu.id, iu.product_id, iu.status
		ORDER BY iu.id`, productID, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rental.UnitSummary
	for rows.Next() {
		var u rental.UnitSummary
		if err := rows.Scan(&u.ID, &u.ProductID, &u.Status, &u.ActiveBlocks); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUnit(ctx context.Context, unitID int64, today time.Time) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var live int
	err = tx.QueryRow(ctx, `
		SELECT 1 FROM availability_blocks
		WHERE inventory_unit_id=$1 AND end_date >= $2 LIMIT 1`, unitID, today).Scan(&live)
	if err == nil {
		return rental.ErrUnitHasBookings
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	ct, err := tx.Exec(ctx, `DELETE FROM inventory_units WHERE id=$1`, unitID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return rental.ErrUnitNotFound
	}
	return tx.Commit(ctx)
}
