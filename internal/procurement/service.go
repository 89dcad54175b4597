package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
}

// CatalogPort lets receipts invalidate cached catalog listings.
type CatalogPort interface {
	InvalidateCache(ctx context.Context)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase order flows.
type Service struct {
	repo     RepositoryPort
	catalog  CatalogPort
	audit    AuditPort
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs procurement service. catalog and audit may be nil.
func NewService(repo RepositoryPort, catalog CatalogPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		audit:    audit,
		validate: shared.NewValidator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create reserves the next PED number and stores the order with computed totals.
func (s *Service) Create(ctx context.Context, input OrderInput) (Order, error) {
	input = input.normalized()
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Order{}, err
	}
	now := s.now()
	order := Order{
		ID:         uuid.New(),
		Supplier:   input.Supplier,
		OrderedAt:  NewDate(now),
		DeliveryAt: input.DeliveryAt,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if input.OrderedAt != nil && !input.OrderedAt.IsZero() {
		order.OrderedAt = *input.OrderedAt
	}
	order.Lines = input.lines(order.ID)
	order.Recalculate()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx)
		if err != nil {
			return fmt.Errorf("procurement: reserve number: %w", err)
		}
		order.Number = number
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "purchase:create", order)
	return order, nil
}

// List returns all purchase orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.repo.List(ctx)
}

// GetByNumber loads an order by numeroPedido.
func (s *Service) GetByNumber(ctx context.Context, number string) (Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Order{}, ErrInvalidNumber
	}
	return s.repo.GetByNumber(ctx, number)
}

// Update replaces supplier, dates and lines of a pendiente order and
// recomputes its total.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input OrderInput) (Order, error) {
	input = input.normalized()
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusCancelled:
			return ErrCancelled
		case StatusDelivered:
			return ErrNotPending
		}
		current.Supplier = input.Supplier
		if input.OrderedAt != nil && !input.OrderedAt.IsZero() {
			current.OrderedAt = *input.OrderedAt
		}
		current.DeliveryAt = input.DeliveryAt
		current.Lines = input.lines(current.ID)
		current.Recalculate()
		current.UpdatedAt = s.now()
		if err := tx.ReplaceLines(ctx, current.ID, current.Lines); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "purchase:update", order)
	return order, nil
}

// Cancel moves a pendiente order to cancelado.
func (s *Service) Cancel(ctx context.Context, number string) (Order, error) {
	return s.transition(ctx, number, "purchase:cancel", func(ctx context.Context, tx TxRepository, o *Order) error {
		o.Status = StatusCancelled
		return nil
	})
}

// Receive marks a pendiente order entregado and books each line into stock.
// Lines resolve to a product by productoId or by exact nombre.
func (s *Service) Receive(ctx context.Context, number string) (Order, error) {
	order, err := s.transition(ctx, number, "purchase:receive", func(ctx context.Context, tx TxRepository, o *Order) error {
		ref := products.MovementRef{Reason: products.ReasonPurchase, Module: "procurement", ID: o.Number}
		for i, line := range o.Lines {
			var (
				p   products.Product
				err error
			)
			if line.ProductID != nil {
				p, err = tx.GetForUpdate(ctx, *line.ProductID)
			} else {
				p, err = tx.FindByNameForUpdate(ctx, line.Name)
			}
			if err != nil {
				return &LineError{FailedAt: i, Err: fmt.Errorf("%q: %w", line.Name, err)}
			}
			if _, err := products.MoveStock(ctx, tx, &p, line.Quantity, ref); err != nil {
				return &LineError{FailedAt: i, Err: err}
			}
		}
		o.Status = StatusDelivered
		if o.DeliveryAt == nil {
			d := NewDate(s.now())
			o.DeliveryAt = &d
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if s.catalog != nil {
		s.catalog.InvalidateCache(ctx)
	}
	return order, nil
}

func (s *Service) transition(ctx context.Context, number, action string, apply func(context.Context, TxRepository, *Order) error) (Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Order{}, ErrInvalidNumber
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetByNumberForUpdate(ctx, number)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusCancelled:
			return ErrCancelled
		case StatusDelivered:
			return ErrNotPending
		}
		if err := apply(ctx, tx, &current); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, action, order)
	return order, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, o Order) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"numero": o.Number, "estado": string(o.Status), "total": o.Total.String()}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "purchase_order", EntityID: o.ID.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit purchase order", slog.String("action", action), slog.Any("error", err))
	}
}
