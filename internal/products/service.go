package products

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bodega/bodega-api/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListActive(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	SearchByName(ctx context.Context, folded string) ([]Product, error)
	ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]StockMovement, error)
}

// CachePort is the versioned cache the active listing is served from.
type CachePort interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations.
type Service struct {
	repo     RepositoryPort
	cache    CachePort
	audit    AuditPort
	validate *validator.Validate
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cache CachePort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		audit:    audit,
		validate: shared.NewValidator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListActive returns every product with estado=true.
func (s *Service) ListActive(ctx context.Context) ([]Product, error) {
	if s.cache == nil {
		return s.repo.ListActive(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "products", "active")
	if err != nil {
		s.logger.Warn("catalog cache key", slog.Any("error", err))
		return s.repo.ListActive(ctx)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var out []Product
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.repo.ListActive(ctx)
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]Product), nil
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.Get(ctx, id)
}

// GetByName finds products whose name contains name, ignoring case and accents.
func (s *Service) GetByName(ctx context.Context, name string) ([]Product, error) {
	folded := SearchName(name)
	if folded == "" {
		return nil, fmt.Errorf("nombre is required: %w", shared.ErrValidation)
	}
	found, err := s.repo.SearchByName(ctx, folded)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no product matches %q: %w", name, ErrNotFound)
	}
	return found, nil
}

// Create stores a new product. New products always start active.
func (s *Service) Create(ctx context.Context, input ProductInput) (Product, error) {
	input = input.normalized()
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Product{}, err
	}
	now := s.now()
	p := Product{
		ID:        uuid.New(),
		Name:      input.Name,
		Price:     input.Price.Round(2),
		Stock:     input.Stock,
		Category:  input.Category,
		Supplier:  input.Supplier,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, p); err != nil {
			return err
		}
		if p.Stock == 0 {
			return nil
		}
		return tx.InsertMovement(ctx, StockMovement{
			ID:          uuid.New(),
			ProductID:   p.ID,
			Delta:       p.Stock,
			StockBefore: 0,
			StockAfter:  p.Stock,
			Reason:      ReasonInitial,
			RefModule:   "products",
			RefID:       p.ID.String(),
		})
	})
	if err != nil {
		return Product{}, err
	}
	s.afterWrite(ctx, "products:create", p)
	return p, nil
}

// Update replaces the whitelisted fields of a product. A stock change is
// booked as an adjustment movement.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input ProductInput) (Product, error) {
	input = input.normalized()
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Product{}, err
	}
	var out Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p.Name = input.Name
		p.Price = input.Price.Round(2)
		p.Category = input.Category
		p.Supplier = input.Supplier
		if delta := input.Stock - p.Stock; delta != 0 {
			ref := MovementRef{Reason: ReasonAdjustment, Module: "products", ID: id.String()}
			if _, err := MoveStock(ctx, tx, &p, delta, ref); err != nil {
				return err
			}
			out = p
			return nil
		}
		out, err = tx.Update(ctx, p)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.afterWrite(ctx, "products:update", out)
	return out, nil
}

// Activate sets estado=true. In auto mode it requires stock.
func (s *Service) Activate(ctx context.Context, id uuid.UUID, mode ActivationMode) (Product, error) {
	return s.setActive(ctx, id, true, mode)
}

// Deactivate sets estado=false. In auto mode it requires empty stock.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID, mode ActivationMode) (Product, error) {
	return s.setActive(ctx, id, false, mode)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool, mode ActivationMode) (Product, error) {
	var out Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := p.SetActive(active, mode); err != nil {
			return err
		}
		out, err = tx.Update(ctx, p)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	action := "products:deactivate"
	if active {
		action = "products:activate"
	}
	s.afterWrite(ctx, action, out)
	return out, nil
}

// Movements returns the stock ledger of a product, newest first.
func (s *Service) Movements(ctx context.Context, id uuid.UUID, limit int) ([]StockMovement, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, id, limit)
}

// SweepActivation repairs products whose estado disagrees with their stock
// and returns how many were fixed.
func (s *Service) SweepActivation(ctx context.Context) (int, error) {
	fixed := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fixed = 0
		drifted, err := tx.ListDrifted(ctx)
		if err != nil {
			return err
		}
		for _, p := range drifted {
			p.Active = p.Stock > 0
			if _, err := tx.Update(ctx, p); err != nil {
				return err
			}
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if fixed > 0 {
		s.InvalidateCache(ctx)
	}
	return fixed, nil
}

// InvalidateCache drops every cached catalog listing. Engines that move
// stock call it after commit.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("catalog cache bump", slog.Any("error", err))
	}
}

func (s *Service) afterWrite(ctx context.Context, action string, p Product) {
	s.InvalidateCache(ctx)
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "product",
		EntityID: p.ID.String(),
		Meta: map[string]any{
			"stock":  p.Stock,
			"estado": p.Active,
			"precio": p.Price.String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit product", slog.String("action", action), slog.Any("error", err))
	}
}
