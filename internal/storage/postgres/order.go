package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, subtotal, total_discount, final_total, status, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createOrderItemSQL = `INSERT INTO order_items
		(order_id, position, product_id, product_name, category, unit_price, quantity, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR customer_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	countOrdersSQL = `SELECT COUNT(*) FROM orders
		WHERE ($1 = '' OR customer_id = $1) AND ($2 = '' OR status = $2)`

	orderItemsSQL = `SELECT order_id, product_id, product_name, category, unit_price, quantity, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	orderDiscountsSQL = `SELECT order_id, id, discount_type, code, amount, applied_at
		FROM order_discounts WHERE order_id = ANY($1) ORDER BY order_id, applied_at, code`

	insertDiscountSQL = `INSERT INTO order_discounts (id, order_id, discount_type, code, amount, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	deleteDiscountSQL = `DELETE FROM order_discounts WHERE order_id = $1 AND code = $2
		RETURNING id, discount_type, code, amount, applied_at`

	addDiscountSQL = `UPDATE orders SET
			total_discount = total_discount + $2,
			final_total = subtotal - (total_discount + $2),
			updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING' AND total_discount + $2 <= TRUNC(subtotal * 0.5, 2)`

	subtractDiscountSQL = `UPDATE orders SET
			total_discount = GREATEST(total_discount - $2, 0),
			final_total = subtotal - GREATEST(total_discount - $2, 0),
			updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	transitionOrderSQL = `UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its lines. The inserts are sent as one
// batch, which PostgreSQL runs atomically.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(createOrderSQL,
		o.ID, o.CustomerID, o.Subtotal, o.TotalDiscount, o.FinalTotal,
		string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	for i, it := range o.Items {
		batch.Queue(createOrderItemSQL,
			o.ID, i, it.ProductID, it.ProductName, it.Category, it.UnitPrice, it.Quantity, it.LineTotal,
		)
	}
	if err := conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order with its items and discounts.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}

	rows, err := conn(ctx, r.pool).Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attach(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns one page of orders, newest first, and the total count.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, countOrdersSQL, f.CustomerID, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := q.Query(ctx, listOrdersSQL, f.CustomerID, string(f.Status), f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attach(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// attach loads the items and discounts of every order in place.
func (r *OrderRepository) attach(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	var (
		orderID string
		it      order.Item
	)
	_, err = pgx.ForEachRow(rows,
		[]any{&orderID, &it.ProductID, &it.ProductName, &it.Category, &it.UnitPrice, &it.Quantity, &it.LineTotal},
		func() error {
			o := &orders[index[orderID]]
			o.Items = append(o.Items, it)
			return nil
		})
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}

	rows, err = q.Query(ctx, orderDiscountsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order discounts: %w", err)
	}
	var (
		d      order.Discount
		source string
	)
	_, err = pgx.ForEachRow(rows,
		[]any{&orderID, &d.ID, &source, &d.Code, &d.Amount, &d.AppliedAt},
		func() error {
			d.Source = discount.Source(source)
			o := &orders[index[orderID]]
			o.Discounts = append(o.Discounts, d)
			return nil
		})
	if err != nil {
		return fmt.Errorf("loading order discounts: %w", err)
	}
	return nil
}

// InsertDiscount records d on the order.
func (r *OrderRepository) InsertDiscount(ctx context.Context, orderID string, d order.Discount) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertDiscountSQL,
		d.ID, orderID, string(d.Source), d.Code, d.Amount, d.AppliedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateCode
		}
		return fmt.Errorf("recording discount %q on order %q: %w", d.Code, orderID, err)
	}
	return nil
}

// DeleteDiscount removes the discount record for code and returns it.
func (r *OrderRepository) DeleteDiscount(ctx context.Context, orderID, code string) (order.Discount, error) {
	var (
		d      order.Discount
		source string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, deleteDiscountSQL, orderID, code).
		Scan(&d.ID, &source, &d.Code, &d.Amount, &d.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Discount{}, order.ErrDiscountNotFound
		}
		return order.Discount{}, fmt.Errorf("removing discount %q from order %q: %w", code, orderID, err)
	}
	d.Source = discount.Source(source)
	return d, nil
}

// AddDiscount raises the totals of a pending order while the total discount
// stays within half the subtotal.
func (r *OrderRepository) AddDiscount(ctx context.Context, orderID string, amount decimal.Decimal) error {
	return r.guarded(ctx, orderID, order.ErrConflict, addDiscountSQL, orderID, amount)
}

// SubtractDiscount lowers the totals of a pending order, flooring the total
// discount at zero.
func (r *OrderRepository) SubtractDiscount(ctx context.Context, orderID string, amount decimal.Decimal) error {
	return r.guarded(ctx, orderID, order.ErrConflict, subtractDiscountSQL, orderID, amount)
}

// Transition moves the order from one status to another.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, from, to order.Status) error {
	return r.guarded(ctx, orderID, order.ErrNotPending, transitionOrderSQL, orderID, string(from), string(to))
}

// guarded runs a conditional update. When it matches no row the cause is
// order.ErrNotFound for a missing order and rejected otherwise.
func (r *OrderRepository) guarded(ctx context.Context, orderID string, rejected error, sql string, args ...any) error {
	if _, err := uuid.Parse(orderID); err != nil {
		return order.ErrNotFound
	}
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", orderID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", orderID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return rejected
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		status  string
		created time.Time
		updated time.Time
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.Subtotal, &o.TotalDiscount, &o.FinalTotal, &status, &created, &updated)
	o.Status = order.Status(status)
	o.CreatedAt = created
	o.UpdatedAt = updated
	return o, err
}
