package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega/bodega-api/internal/platform/db"
)

// StockWriter is the transactional product surface used by any engine that
// moves stock (sales, purchases).
type StockWriter interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Product, error)
	FindByNameForUpdate(ctx context.Context, name string) (Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	InsertMovement(ctx context.Context, mv StockMovement) error
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	StockWriter
	Insert(ctx context.Context, p Product) error
	ListDrifted(ctx context.Context) ([]Product, error)
}

// Store runs product queries on any DBTX, pool or transaction.
type Store struct {
	db db.DBTX
}

// NewStore binds a Store to conn.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// Repository persists products in PostgreSQL.
type Repository struct {
	*Store
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Store: NewStore(pool), pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

const productColumns = `id, name, price, stock, category, supplier, active, manual_override, version, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price pgtype.Numeric
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.Category, &p.Supplier, &p.Active, &p.ManualOverride, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	p.Price = db.Decimal(price)
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActive returns active products ordered by name.
func (s *Store) ListActive(ctx context.Context) ([]Product, error) {
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE active = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("products: list active: %w", err)
	}
	return collectProducts(rows)
}

// Get loads a product by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// SearchByName matches a folded search name as a substring.
func (s *Store) SearchByName(ctx context.Context, folded string) ([]Product, error) {
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE search_name LIKE '%' || $1 || '%' ORDER BY name LIMIT 50`, folded)
	if err != nil {
		return nil, fmt.Errorf("products: search: %w", err)
	}
	return collectProducts(rows)
}

// ListMovements returns the newest ledger entries for a product.
func (s *Store) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT id, product_id, delta, stock_before, stock_after, reason, ref_module, ref_id, created_at
		FROM stock_movements WHERE product_id = $1 ORDER BY created_at DESC, id LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("products: list movements: %w", err)
	}
	defer rows.Close()
	var out []StockMovement
	for rows.Next() {
		var mv StockMovement
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.Delta, &mv.StockBefore, &mv.StockAfter, &mv.Reason, &mv.RefModule, &mv.RefID, &mv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// GetForUpdate locks and loads a product row.
func (s *Store) GetForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

// FindByNameForUpdate locks the product whose name matches exactly.
func (s *Store) FindByNameForUpdate(ctx context.Context, name string) (Product, error) {
	return scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE name = $1 ORDER BY created_at LIMIT 1 FOR UPDATE`, name))
}

// Insert stores a new product.
func (s *Store) Insert(ctx context.Context, p Product) error {
	_, err := s.db.Exec(ctx, `INSERT INTO products (id, name, search_name, price, stock, category, supplier, active, manual_override, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, SearchName(p.Name), db.Numeric(p.Price), p.Stock, p.Category, p.Supplier, p.Active, p.ManualOverride, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("products: insert: %w", err)
	}
	return nil
}

// Update writes p if its version still matches the stored row and returns
// the product with the bumped version.
func (s *Store) Update(ctx context.Context, p Product) (Product, error) {
	row := s.db.QueryRow(ctx, `UPDATE products
		SET name = $3, search_name = $4, price = $5, stock = $6, category = $7, supplier = $8, active = $9,
		    manual_override = $10, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING `+productColumns,
		p.ID, p.Version, p.Name, SearchName(p.Name), db.Numeric(p.Price), p.Stock, p.Category, p.Supplier, p.Active, p.ManualOverride)
	updated, err := scanProduct(row)
	if errors.Is(err, ErrNotFound) {
		return Product{}, ErrConcurrentUpdate
	}
	if err != nil {
		return Product{}, fmt.Errorf("products: update: %w", err)
	}
	return updated, nil
}

// InsertMovement appends a ledger entry.
func (s *Store) InsertMovement(ctx context.Context, mv StockMovement) error {
	_, err := s.db.Exec(ctx, `INSERT INTO stock_movements (id, product_id, delta, stock_before, stock_after, reason, ref_module, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		mv.ID, mv.ProductID, mv.Delta, mv.StockBefore, mv.StockAfter, string(mv.Reason), mv.RefModule, mv.RefID)
	if err != nil {
		return fmt.Errorf("products: insert movement: %w", err)
	}
	return nil
}

// ListDrifted locks products whose active flag disagrees with their stock
// and was not set by hand.
func (s *Store) ListDrifted(ctx context.Context) ([]Product, error) {
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE active <> (stock > 0) AND NOT manual_override FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("products: list drifted: %w", err)
	}
	return collectProducts(rows)
}
