package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega/bodega-api/internal/platform/db"
	"github.com/bodega/bodega-api/internal/products"
)

const counterName = "purchase_order"

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	products.StockWriter
	NextNumber(ctx context.Context) (string, error)
	InsertOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) error
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	GetByNumberForUpdate(ctx context.Context, number string) (Order, error)
	ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []Line) error
}

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	q    queries
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: queries{db: pool}}
}

type queries struct {
	db db.DBTX
}

type txRepo struct {
	*products.Store
	queries
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{Store: products.NewStore(tx), queries: queries{db: tx}})
	})
}

// List returns every order, newest first.
func (r *Repository) List(ctx context.Context) ([]Order, error) {
	rows, err := r.q.db.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders ORDER BY created_at DESC LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.q.attachLines(ctx, out)
}

// GetByNumber loads an order by numeroPedido.
func (r *Repository) GetByNumber(ctx context.Context, number string) (Order, error) {
	return r.q.getOne(ctx, `WHERE number = $1`, number)
}

const orderColumns = `id, number, supplier, ordered_at, delivery_at, total, status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o        Order
		ordered  time.Time
		delivery *time.Time
		total    pgtype.Numeric
		status   string
	)
	if err := row.Scan(&o.ID, &o.Number, &o.Supplier, &ordered, &delivery, &total, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.OrderedAt = NewDate(ordered)
	if delivery != nil {
		d := NewDate(*delivery)
		o.DeliveryAt = &d
	}
	o.Total = db.Decimal(total)
	o.Status = Status(status)
	return o, nil
}

func (q queries) getOne(ctx context.Context, where string, arg any) (Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders `+where, arg))
	if err != nil {
		return Order{}, err
	}
	withLines, err := q.attachLines(ctx, []Order{o})
	if err != nil {
		return Order{}, err
	}
	return withLines[0], nil
}

func (q queries) attachLines(ctx context.Context, orders []Order) ([]Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	rows, err := q.db.Query(ctx, `SELECT id, order_id, position, product_id, name, quantity, unit_price, subtotal
FROM purchase_order_lines WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l         Line
			unitPrice pgtype.Numeric
			subtotal  pgtype.Numeric
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Position, &l.ProductID, &l.Name, &l.Quantity, &unitPrice, &subtotal); err != nil {
			return nil, err
		}
		l.UnitPrice = db.Decimal(unitPrice)
		l.Subtotal = db.Decimal(subtotal)
		i := index[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return orders, rows.Err()
}

func (q queries) NextNumber(ctx context.Context) (string, error) {
	var n int64
	err := q.db.QueryRow(ctx, `UPDATE order_counters SET value = value + 1 WHERE name = $1 RETURNING value`, counterName).Scan(&n)
	if err != nil {
		return "", err
	}
	return FormatNumber(n), nil
}

func (q queries) InsertOrder(ctx context.Context, o Order) error {
	_, err := q.db.Exec(ctx, `INSERT INTO purchase_orders (id, number, supplier, ordered_at, delivery_at, total, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.Number, o.Supplier, o.OrderedAt.Time, deliveryArg(o.DeliveryAt), db.Numeric(o.Total), string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	return q.insertLines(ctx, o.Lines)
}

func (q queries) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := q.db.Exec(ctx, `UPDATE purchase_orders SET supplier = $2, ordered_at = $3, delivery_at = $4, total = $5, status = $6, updated_at = $7 WHERE id = $1`,
		o.ID, o.Supplier, o.OrderedAt.Time, deliveryArg(o.DeliveryAt), db.Numeric(o.Total), string(o.Status), o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return q.getOne(ctx, `WHERE id = $1 FOR UPDATE`, id)
}

func (q queries) GetByNumberForUpdate(ctx context.Context, number string) (Order, error) {
	return q.getOne(ctx, `WHERE number = $1 FOR UPDATE`, number)
}

func (q queries) ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []Line) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	return q.insertLines(ctx, lines)
}

func (q queries) insertLines(ctx context.Context, lines []Line) error {
	for _, l := range lines {
		_, err := q.db.Exec(ctx, `INSERT INTO purchase_order_lines (id, order_id, position, product_id, name, quantity, unit_price, subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, l.OrderID, l.Position, l.ProductID, l.Name, l.Quantity, db.Numeric(l.UnitPrice), db.Numeric(l.Subtotal))
		if err != nil {
			return err
		}
	}
	return nil
}

func deliveryArg(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
