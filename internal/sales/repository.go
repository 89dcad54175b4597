package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega/bodega-api/internal/platform/db"
	"github.com/bodega/bodega-api/internal/products"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	products.StockWriter
	InsertSale(ctx context.Context, sale Sale) error
	GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error)
	UpdateSale(ctx context.Context, sale Sale) error
	InsertLine(ctx context.Context, line LineItem) error
	UpdateLine(ctx context.Context, line LineItem) error
	InsertTaxRecord(ctx context.Context, rec TaxRecord) error
}

// Repository persists sales in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction. Product
// rows are locked and written on the same transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{Store: products.NewStore(tx), queries: queries{db: tx}})
	})
}

const saleColumns = `id, customer_id, customer_name, customer_tax_id, walk_in, subtotal, igv, apply_igv, igv_rate, total, active, deactivation_reason, created_at, updated_at`

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s                          Sale
		subtotal, igv, rate, total pgtype.Numeric
	)
	err := row.Scan(&s.ID, &s.CustomerID, &s.CustomerName, &s.CustomerTaxID, &s.WalkIn, &subtotal, &igv, &s.ApplyIGV, &rate, &total, &s.Active, &s.DeactivationReason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	s.Subtotal = db.Decimal(subtotal)
	s.IGV = db.Decimal(igv)
	s.IGVRate = db.Decimal(rate)
	s.Total = db.Decimal(total)
	return s, nil
}

const lineSelect = `SELECT l.id, l.sale_id, l.product_id, l.position, l.quantity, l.unit_price, l.subtotal, l.created_at, l.updated_at,
	p.name, p.price, s.total, s.active, s.created_at
	FROM sale_lines l
	JOIN products p ON p.id = l.product_id
	JOIN sales s ON s.id = l.sale_id`

func scanLine(row pgx.Row) (LineView, error) {
	var (
		v                           LineView
		unit, sub, price, saleTotal pgtype.Numeric
		ref                         ProductRef
	)
	err := row.Scan(&v.ID, &v.SaleID, &v.ProductID, &v.Position, &v.Quantity, &unit, &sub, &v.CreatedAt, &v.UpdatedAt,
		&ref.Name, &price, &saleTotal, &v.Sale.Active, &v.Sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineView{}, ErrNotFound
		}
		return LineView{}, err
	}
	v.UnitPrice = db.Decimal(unit)
	v.Subtotal = db.Decimal(sub)
	ref.ID = v.ProductID
	ref.Price = db.Decimal(price)
	v.Product = &ref
	v.Sale.ID = v.SaleID
	v.Sale.Total = db.Decimal(saleTotal)
	return v, nil
}

func (q queries) linesFor(ctx context.Context, saleIDs []uuid.UUID) (map[uuid.UUID][]LineItem, error) {
	out := make(map[uuid.UUID][]LineItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, lineSelect+` WHERE l.sale_id = ANY($1) ORDER BY l.sale_id, l.position`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("sales: list lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out[v.SaleID] = append(out[v.SaleID], v.LineItem)
	}
	return out, rows.Err()
}

func (q queries) getSale(ctx context.Context, id uuid.UUID, lock bool) (Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.db.QueryRow(ctx, query, id))
	if err != nil {
		return Sale{}, err
	}
	lines, err := q.linesFor(ctx, []uuid.UUID{id})
	if err != nil {
		return Sale{}, err
	}
	sale.Lines = lines[id]
	return sale, nil
}

// ListSales returns sales by active flag with their lines, newest first.
func (r *Repository) ListSales(ctx context.Context, active bool) ([]Sale, error) {
	rows, err := r.q.db.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE active = $1 ORDER BY created_at DESC LIMIT 500`, active)
	if err != nil {
		return nil, fmt.Errorf("sales: list: %w", err)
	}
	var (
		list []Sale
		ids  []uuid.UUID
	)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := r.q.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Lines = lines[list[i].ID]
	}
	return list, nil
}

// GetSale loads a sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return r.q.getSale(ctx, id, false)
}

// GetLine loads one line item with its sale summary.
func (r *Repository) GetLine(ctx context.Context, id uuid.UUID) (LineView, error) {
	return scanLine(r.q.db.QueryRow(ctx, lineSelect+` WHERE l.id = $1`, id))
}

// ListActiveLines returns the line items of active sales.
func (r *Repository) ListActiveLines(ctx context.Context) ([]LineView, error) {
	rows, err := r.q.db.Query(ctx, lineSelect+` WHERE s.active = TRUE ORDER BY s.created_at DESC, l.position LIMIT 2000`)
	if err != nil {
		return nil, fmt.Errorf("sales: list active lines: %w", err)
	}
	defer rows.Close()
	var out []LineView
	for rows.Next() {
		v, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *txRepo) GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error) {
	return r.queries.getSale(ctx, id, true)
}

func (r *txRepo) InsertSale(ctx context.Context, s Sale) error {
	_, err := r.queries.db.Exec(ctx, `INSERT INTO sales (id, customer_id, customer_name, customer_tax_id, walk_in, subtotal, igv, apply_igv, igv_rate, total, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.CustomerID, s.CustomerName, s.CustomerTaxID, s.WalkIn, db.Numeric(s.Subtotal), db.Numeric(s.IGV), s.ApplyIGV, db.Numeric(s.IGVRate), db.Numeric(s.Total), s.Active, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sales: insert sale: %w", err)
	}
	return nil
}

func (r *txRepo) UpdateSale(ctx context.Context, s Sale) error {
	_, err := r.queries.db.Exec(ctx, `UPDATE sales SET subtotal = $2, igv = $3, total = $4, active = $5, deactivation_reason = $6, updated_at = NOW() WHERE id = $1`,
		s.ID, db.Numeric(s.Subtotal), db.Numeric(s.IGV), db.Numeric(s.Total), s.Active, s.DeactivationReason)
	if err != nil {
		return fmt.Errorf("sales: update sale: %w", err)
	}
	return nil
}

func (r *txRepo) InsertLine(ctx context.Context, l LineItem) error {
	_, err := r.queries.db.Exec(ctx, `INSERT INTO sale_lines (id, sale_id, product_id, position, quantity, unit_price, subtotal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.SaleID, l.ProductID, l.Position, l.Quantity, db.Numeric(l.UnitPrice), db.Numeric(l.Subtotal), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sales: insert line: %w", err)
	}
	return nil
}

func (r *txRepo) UpdateLine(ctx context.Context, l LineItem) error {
	_, err := r.queries.db.Exec(ctx, `UPDATE sale_lines SET quantity = $2, subtotal = $3, updated_at = NOW() WHERE id = $1`,
		l.ID, l.Quantity, db.Numeric(l.Subtotal))
	if err != nil {
		return fmt.Errorf("sales: update line: %w", err)
	}
	return nil
}

func (r *txRepo) InsertTaxRecord(ctx context.Context, rec TaxRecord) error {
	_, err := r.queries.db.Exec(ctx, `INSERT INTO sale_taxes (id, sale_id, apply, rate, amount, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SaleID, rec.Apply, db.Numeric(rec.Rate), db.Numeric(rec.Amount), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("sales: insert tax record: %w", err)
	}
	return nil
}
