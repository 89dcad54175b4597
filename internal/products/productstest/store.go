// Package productstest provides an in-memory product store for tests of
// packages that move stock.
package productstest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bodega/bodega-api/internal/products"
)

// Store is an in-memory products.RepositoryPort and products.TxRepository.
type Store struct {
	mu        sync.Mutex
	products  map[uuid.UUID]products.Product
	movements []products.StockMovement
	// FailUpdate, when set, is returned by Update for the given product.
	FailUpdate map[uuid.UUID]error
}

// New returns an empty store.
func New() *Store {
	return &Store{products: make(map[uuid.UUID]products.Product), FailUpdate: make(map[uuid.UUID]error)}
}

// Seed stores a product with the given name, price and stock, deriving the
// active flag from stock, and returns it.
func (s *Store) Seed(name, price string, stock int) products.Product {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := products.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		Category:  "abarrotes",
		Active:    stock > 0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Put(p)
	return p
}

// Put stores p as-is.
func (s *Store) Put(p products.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// Product returns the stored product or the zero value.
func (s *Store) Product(id uuid.UUID) products.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

// Movements returns every recorded ledger entry in insertion order.
func (s *Store) Movements() []products.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]products.StockMovement, len(s.movements))
	copy(out, s.movements)
	return out
}

// Snapshot captures current state and returns a function restoring it,
// emulating a transaction rollback.
func (s *Store) Snapshot() (restore func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := make(map[uuid.UUID]products.Product, len(s.products))
	for k, v := range s.products {
		saved[k] = v
	}
	movements := len(s.movements)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.products = saved
		s.movements = s.movements[:movements]
	}
}

// WithTx runs fn and restores state if it fails.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, products.TxRepository) error) error {
	restore := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) ListActive(ctx context.Context) ([]products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []products.Product
	for _, p := range s.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	return p, nil
}

func (s *Store) SearchByName(ctx context.Context, folded string) ([]products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []products.Product
	for _, p := range s.products {
		if strings.Contains(products.SearchName(p.Name), folded) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]products.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []products.StockMovement
	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].ProductID == productID {
			out = append(out, s.movements[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetForUpdate(ctx context.Context, id uuid.UUID) (products.Product, error) {
	return s.Get(ctx, id)
}

func (s *Store) FindByNameForUpdate(ctx context.Context, name string) (products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Name == name {
			return p, nil
		}
	}
	return products.Product{}, products.ErrNotFound
}

func (s *Store) Insert(ctx context.Context, p products.Product) error {
	s.Put(p)
	return nil
}

func (s *Store) Update(ctx context.Context, p products.Product) (products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpdate[p.ID]; err != nil {
		return products.Product{}, err
	}
	current, ok := s.products[p.ID]
	if !ok || current.Version != p.Version {
		return products.Product{}, products.ErrConcurrentUpdate
	}
	p.Version++
	p.UpdatedAt = current.UpdatedAt.Add(time.Second)
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) InsertMovement(ctx context.Context, mv products.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, mv)
	return nil
}

func (s *Store) ListDrifted(ctx context.Context) ([]products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []products.Product
	for _, p := range s.products {
		if p.Active != (p.Stock > 0) && !p.ManualOverride {
			out = append(out, p)
		}
	}
	return out, nil
}
