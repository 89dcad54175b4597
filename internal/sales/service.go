package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bodega/bodega-api/internal/platform/db"
	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/shared"
)

const idempotencyModule = "sales"

var tracer = otel.Tracer("github.com/bodega/bodega-api/internal/sales")

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListSales(ctx context.Context, active bool) ([]Sale, error)
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	GetLine(ctx context.Context, id uuid.UUID) (LineView, error)
	ListActiveLines(ctx context.Context) ([]LineView, error)
}

// CatalogPort lets the engine invalidate cached catalog listings.
type CatalogPort interface {
	InvalidateCache(ctx context.Context)
}

// AlertPort queues low-stock notifications.
type AlertPort interface {
	EnqueueLowStock(ctx context.Context, alert products.LowStockAlert) error
}

// IdempotencyPort guards crear_venta replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder receives domain metrics.
type Recorder interface {
	SaleCreated(total float64)
	StockConflict(operation string)
}

// ServiceDeps groups optional collaborators; any of them may be nil.
type ServiceDeps struct {
	Catalog           CatalogPort
	Alerts            AlertPort
	Idempotency       IdempotencyPort
	Audit             AuditPort
	Metrics           Recorder
	Logger            *slog.Logger
	LowStockThreshold int
}

// Service is the sale engine.
type Service struct {
	repo     RepositoryPort
	deps     ServiceDeps
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, deps ServiceDeps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		deps:     deps,
		validate: shared.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSale validates the request, resolves products, decrements stock and
// stores the sale with its line items and IGV snapshot in one transaction.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (sale Sale, err error) {
	ctx, span := tracer.Start(ctx, "sales.CreateSale", trace.WithAttributes(attribute.Int("sale.lines", len(input.Lines))))
	defer func() { endSpan(span, err) }()

	cmd, err := input.command(s.validate)
	if err != nil {
		return Sale{}, err
	}
	if key := input.IdempotencyKey; key != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Sale{}, err
		}
		defer func() {
			if err != nil {
				_ = s.deps.Idempotency.Delete(ctx, key, idempotencyModule)
			}
		}()
	}

	now := s.now()
	draft := Sale{
		ID:            uuid.New(),
		CustomerID:    cmd.customerID,
		CustomerName:  cmd.customerName,
		CustomerTaxID: cmd.customerTaxID,
		WalkIn:        cmd.walkIn,
		ApplyIGV:      cmd.applyIGV,
		IGVRate:       cmd.rate,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var touched []products.Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale = draft
		sale.Lines = nil
		touched = touched[:0]
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		seen := make(map[uuid.UUID]int, len(cmd.lines))
		ref := products.MovementRef{Reason: products.ReasonSale, Module: "sales", ID: sale.ID.String()}
		for i, req := range cmd.lines {
			p, err := resolveProduct(ctx, tx, req)
			if err != nil {
				return newLineError(i, err)
			}
			if prev, dup := seen[p.ID]; dup {
				return newLineError(i, fmt.Errorf("%q already at line %d: %w", p.Name, prev, ErrDuplicateProduct))
			}
			seen[p.ID] = i
			if !p.HasStock(req.Quantity) {
				return newLineError(i, fmt.Errorf("%q has %d, needs %d: %w", p.Name, p.Stock, req.Quantity, products.ErrInsufficientStock))
			}
			line := LineItem{
				ID:        uuid.New(),
				SaleID:    sale.ID,
				ProductID: p.ID,
				Position:  i,
				Quantity:  req.Quantity,
				UnitPrice: p.Price,
				Subtotal:  LineSubtotal(req.Quantity, p.Price),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
			if _, err := products.MoveStock(ctx, tx, &p, -req.Quantity, ref); err != nil {
				return newLineError(i, err)
			}
			line.Product = &ProductRef{ID: p.ID, Name: p.Name, Price: p.Price}
			sale.Lines = append(sale.Lines, line)
			touched = append(touched, p)
		}
		sale.Recalculate()
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
		return tx.InsertTaxRecord(ctx, sale.TaxRecord(now))
	})
	if err != nil {
		s.noteFailure("create", err)
		return Sale{}, err
	}
	span.SetAttributes(attribute.String("sale.id", sale.ID.String()), attribute.String("sale.total", sale.Total.String()))
	if s.deps.Metrics != nil {
		total, _ := sale.Total.Float64()
		s.deps.Metrics.SaleCreated(total)
	}
	s.afterCommit(ctx, "sales:create", sale, touched)
	return sale, nil
}

// AmendSale sets the absolute quantity of each listed product within the
// sale, reconciling stock by the difference, and recomputes totals.
// Existing lines keep their unit price; new lines take the current price.
func (s *Service) AmendSale(ctx context.Context, saleID uuid.UUID, lines []AmendLine) (sale Sale, err error) {
	ctx, span := tracer.Start(ctx, "sales.AmendSale", trace.WithAttributes(attribute.String("sale.id", saleID.String())))
	defer func() { endSpan(span, err) }()

	if err := validateAmend(s.validate, lines); err != nil {
		return Sale{}, err
	}
	var touched []products.Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		touched = touched[:0]
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !current.Active {
			return ErrSaleInactive
		}
		now := s.now()
		ref := products.MovementRef{Reason: products.ReasonSaleAmend, Module: "sales", ID: saleID.String()}
		for i, req := range lines {
			p, err := tx.GetForUpdate(ctx, req.ProductID)
			if err != nil {
				return newLineError(i, err)
			}
			if existing, ok := current.LineFor(p.ID); ok {
				delta := req.Quantity - existing.Quantity
				if delta > 0 && !p.HasStock(delta) {
					return newLineError(i, fmt.Errorf("%q has %d, needs %d more: %w", p.Name, p.Stock, delta, products.ErrInsufficientStock))
				}
				if delta != 0 {
					if _, err := products.MoveStock(ctx, tx, &p, -delta, ref); err != nil {
						return newLineError(i, err)
					}
				}
				existing.Quantity = req.Quantity
				existing.Subtotal = LineSubtotal(req.Quantity, existing.UnitPrice)
				existing.UpdatedAt = now
				existing.Product = &ProductRef{ID: p.ID, Name: p.Name, Price: p.Price}
				if err := tx.UpdateLine(ctx, *existing); err != nil {
					return err
				}
				touched = append(touched, p)
				continue
			}
			if !p.HasStock(req.Quantity) {
				return newLineError(i, fmt.Errorf("%q has %d, needs %d: %w", p.Name, p.Stock, req.Quantity, products.ErrInsufficientStock))
			}
			line := LineItem{
				ID:        uuid.New(),
				SaleID:    current.ID,
				ProductID: p.ID,
				Position:  len(current.Lines),
				Quantity:  req.Quantity,
				UnitPrice: p.Price,
				Subtotal:  LineSubtotal(req.Quantity, p.Price),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
			if _, err := products.MoveStock(ctx, tx, &p, -req.Quantity, ref); err != nil {
				return newLineError(i, err)
			}
			line.Product = &ProductRef{ID: p.ID, Name: p.Name, Price: p.Price}
			current.Lines = append(current.Lines, line)
			touched = append(touched, p)
		}
		current.Recalculate()
		current.UpdatedAt = now
		if err := tx.UpdateSale(ctx, current); err != nil {
			return err
		}
		sale = current
		return nil
	})
	if err != nil {
		s.noteFailure("amend", err)
		return Sale{}, err
	}
	s.afterCommit(ctx, "sales:amend", sale, touched)
	return sale, nil
}

// DeactivateSale marks the sale inactive with a reason. Stock is not
// restored.
func (s *Service) DeactivateSale(ctx context.Context, saleID uuid.UUID, reason string) (sale Sale, err error) {
	ctx, span := tracer.Start(ctx, "sales.DeactivateSale", trace.WithAttributes(attribute.String("sale.id", saleID.String())))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultDeactivationReason
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !current.Active {
			return ErrSaleInactive
		}
		current.Active = false
		current.DeactivationReason = &reason
		current.Recalculate()
		current.UpdatedAt = s.now()
		if err := tx.UpdateSale(ctx, current); err != nil {
			return err
		}
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.afterCommit(ctx, "sales:deactivate", sale, nil)
	return sale, nil
}

// ListSales returns sales matching the status filter, newest first.
func (s *Service) ListSales(ctx context.Context, filter StatusFilter) ([]Sale, error) {
	return s.repo.ListSales(ctx, filter != StatusInactive)
}

// GetSale returns a sale with its line items.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// GetLineItem returns a line item; lines of deactivated sales are hidden.
func (s *Service) GetLineItem(ctx context.Context, id uuid.UUID) (LineView, error) {
	view, err := s.repo.GetLine(ctx, id)
	if err != nil {
		return LineView{}, err
	}
	if !view.Sale.Active {
		return LineView{}, ErrSaleInactive
	}
	return view, nil
}

// ListActiveLines returns every line item whose sale is active.
func (s *Service) ListActiveLines(ctx context.Context) ([]LineView, error) {
	return s.repo.ListActiveLines(ctx)
}

func resolveProduct(ctx context.Context, tx products.StockWriter, req LineRequest) (products.Product, error) {
	if req.ProductID != nil {
		return tx.GetForUpdate(ctx, *req.ProductID)
	}
	p, err := tx.FindByNameForUpdate(ctx, req.Name)
	if err != nil {
		return products.Product{}, fmt.Errorf("%q: %w", req.Name, err)
	}
	return p, nil
}

func (s *Service) noteFailure(operation string, err error) {
	serialization := db.IsSerializationFailure(err)
	if s.deps.Metrics != nil && (serialization || errors.Is(err, products.ErrInsufficientStock)) {
		s.deps.Metrics.StockConflict(operation)
	}
	if !serialization && !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		s.deps.Logger.Error("sale operation failed", slog.String("operation", operation), slog.Any("error", err))
	}
}

func (s *Service) afterCommit(ctx context.Context, action string, sale Sale, touched []products.Product) {
	if s.deps.Catalog != nil && len(touched) > 0 {
		s.deps.Catalog.InvalidateCache(ctx)
	}
	if s.deps.Alerts != nil {
		for _, alert := range products.LowStockAlerts(touched, s.deps.LowStockThreshold, action) {
			if err := s.deps.Alerts.EnqueueLowStock(ctx, alert); err != nil {
				s.deps.Logger.Warn("enqueue low stock alert", slog.String("product_id", alert.ProductID.String()), slog.Any("error", err))
			}
		}
	}
	if s.deps.Audit != nil {
		meta := map[string]any{
			"total":  sale.Total.String(),
			"lines":  len(sale.Lines),
			"estado": sale.Active,
		}
		if sale.DeactivationReason != nil {
			meta["motivo"] = *sale.DeactivationReason
		}
		if err := s.deps.Audit.Record(ctx, shared.AuditLog{Action: action, Entity: "sale", EntityID: sale.ID.String(), Meta: meta}); err != nil {
			s.deps.Logger.Warn("audit sale", slog.String("action", action), slog.Any("error", err))
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if le, ok := AsLineError(err); ok {
			span.SetAttributes(attribute.Int("sale.failed_at", le.FailedAt))
		}
	}
	span.End()
}
