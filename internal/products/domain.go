package products

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bodega/bodega-api/internal/shared"
)

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = fmt.Errorf("product: %w", shared.ErrNotFound)
	// ErrInsufficientStock is returned when a decrement would take stock below zero.
	ErrInsufficientStock = fmt.Errorf("insufficient stock: %w", shared.ErrConflict)
	// ErrConcurrentUpdate indicates the row version moved under us.
	ErrConcurrentUpdate = fmt.Errorf("concurrent product update: %w", shared.ErrConflict)
	// ErrStockRemaining blocks an auto deactivation while stock is left.
	ErrStockRemaining = fmt.Errorf("product still has stock: %w", shared.ErrConflict)
	// ErrNoStock blocks an auto activation while stock is empty.
	ErrNoStock = fmt.Errorf("product has no stock: %w", shared.ErrConflict)
	// ErrInvalidMode rejects unknown activation modes.
	ErrInvalidMode = fmt.Errorf("modo must be auto or manual: %w", shared.ErrValidation)
	// ErrInvalidID rejects malformed identifiers.
	ErrInvalidID = fmt.Errorf("invalid product id: %w", shared.ErrValidation)
	// ErrZeroDelta rejects no-op stock movements.
	ErrZeroDelta = errors.New("product: stock delta must be non-zero")
)

// Product is a sellable catalog item.
type Product struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"nombre"`
	Price    decimal.Decimal `json:"precio"`
	Stock    int             `json:"stock"`
	Category string          `json:"categoria"`
	Supplier *string         `json:"proveedor"`
	Active   bool            `json:"estado"`
	// ManualOverride marks an estado set by hand; the activation sweep
	// leaves such rows alone until stock moves again.
	ManualOverride bool      `json:"-"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ProductInput is the whitelisted set of fields callers may write.
type ProductInput struct {
	Name     string          `json:"nombre" validate:"required,max=120"`
	Price    decimal.Decimal `json:"precio" validate:"gt=0"`
	Stock    int             `json:"stock" validate:"gte=0"`
	Category string          `json:"categoria" validate:"required,max=80"`
	Supplier *string         `json:"proveedor" validate:"omitempty,max=120"`
}

func (in ProductInput) normalized() ProductInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Supplier != nil {
		s := strings.TrimSpace(*in.Supplier)
		if s == "" {
			in.Supplier = nil
		} else {
			in.Supplier = &s
		}
	}
	return in
}

// MovementReason classifies a stock movement.
type MovementReason string

const (
	ReasonInitial    MovementReason = "alta"
	ReasonAdjustment MovementReason = "ajuste"
	ReasonSale       MovementReason = "venta"
	ReasonSaleAmend  MovementReason = "venta_modificada"
	ReasonPurchase   MovementReason = "compra"
)

// StockMovement is one ledger entry in stock_movements.
type StockMovement struct {
	ID          uuid.UUID      `json:"id"`
	ProductID   uuid.UUID      `json:"productoId"`
	Delta       int            `json:"delta"`
	StockBefore int            `json:"stockAnterior"`
	StockAfter  int            `json:"stockNuevo"`
	Reason      MovementReason `json:"motivo"`
	RefModule   string         `json:"modulo,omitempty"`
	RefID       string         `json:"referenciaId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// MovementRef links a movement to the document that caused it.
type MovementRef struct {
	Reason MovementReason
	Module string
	ID     string
}

// ApplyStockDelta moves stock by delta and re-derives the active flag.
// After a successful call Active == (Stock > 0); every stock-mutating path
// goes through here.
func (p *Product) ApplyStockDelta(delta int, ref MovementRef) (StockMovement, error) {
	if delta == 0 {
		return StockMovement{}, ErrZeroDelta
	}
	after := p.Stock + delta
	if after < 0 {
		return StockMovement{}, fmt.Errorf("%q has %d, needs %d: %w", p.Name, p.Stock, -delta, ErrInsufficientStock)
	}
	mv := StockMovement{
		ID:          uuid.New(),
		ProductID:   p.ID,
		Delta:       delta,
		StockBefore: p.Stock,
		StockAfter:  after,
		Reason:      ref.Reason,
		RefModule:   ref.Module,
		RefID:       ref.ID,
	}
	p.Stock = after
	p.Active = p.Stock > 0
	p.ManualOverride = false
	return mv, nil
}

// HasStock reports whether qty units can be taken.
func (p Product) HasStock(qty int) bool {
	return p.Stock >= qty
}

// ActivationMode controls how activate/deactivate treat current stock.
type ActivationMode string

const (
	// ModeManual applies the transition unconditionally.
	ModeManual ActivationMode = "manual"
	// ModeAuto applies the transition only when stock agrees with it.
	ModeAuto ActivationMode = "auto"
)

// ParseActivationMode reads the modo query parameter. Empty means manual.
func ParseActivationMode(raw string) (ActivationMode, error) {
	switch ActivationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeManual:
		return ModeManual, nil
	case ModeAuto:
		return ModeAuto, nil
	default:
		return "", ErrInvalidMode
	}
}

// SetActive applies an activation transition under mode.
func (p *Product) SetActive(active bool, mode ActivationMode) error {
	if mode == ModeAuto {
		if active && p.Stock <= 0 {
			return ErrNoStock
		}
		if !active && p.Stock > 0 {
			return ErrStockRemaining
		}
	}
	p.Active = active
	p.ManualOverride = mode == ModeManual && active != (p.Stock > 0)
	return nil
}

// ParseID parses a product identifier.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// LowStockAlert reports a product whose stock fell to or below a threshold.
type LowStockAlert struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	Threshold int       `json:"threshold"`
	Source    string    `json:"source"`
}

// LowStockAlerts returns an alert for every product at or below threshold.
// A non-positive threshold disables alerts.
func LowStockAlerts(touched []Product, threshold int, source string) []LowStockAlert {
	if threshold <= 0 {
		return nil
	}
	var out []LowStockAlert
	for _, p := range touched {
		if p.Stock <= threshold {
			out = append(out, LowStockAlert{ProductID: p.ID, Name: p.Name, Stock: p.Stock, Threshold: threshold, Source: source})
		}
	}
	return out
}
