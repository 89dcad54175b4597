package sales

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bodega/bodega-api/internal/shared"
)

const (
	// DefaultCustomerName labels walk-in sales without a named customer.
	DefaultCustomerName = "Persona General"
	// DefaultDeactivationReason is stored when a caller gives no reason.
	DefaultDeactivationReason = "unspecified"
)

// DefaultIGVRate is the standard Peruvian IGV percentage.
var DefaultIGVRate = decimal.NewFromInt(18)

var (
	// ErrNotFound indicates the sale or line item does not exist.
	ErrNotFound = fmt.Errorf("sale: %w", shared.ErrNotFound)
	// ErrSaleInactive blocks reads and writes through a deactivated sale.
	ErrSaleInactive = fmt.Errorf("sale is deactivated: %w", shared.ErrConflict)
	// ErrNoLines rejects a sale without products.
	ErrNoLines = fmt.Errorf("a sale needs at least one product: %w", shared.ErrValidation)
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = fmt.Errorf("cantidad must be a positive integer: %w", shared.ErrValidation)
	// ErrMissingProductRef rejects a line with neither productoId nor nombre.
	ErrMissingProductRef = fmt.Errorf("productoId or nombre is required: %w", shared.ErrValidation)
	// ErrDuplicateProduct rejects the same product twice in one request.
	ErrDuplicateProduct = fmt.Errorf("product listed more than once: %w", shared.ErrValidation)
	// ErrInvalidRate rejects IGV percentages outside [0, 100].
	ErrInvalidRate = fmt.Errorf("porcentajeIGV must be between 0 and 100: %w", shared.ErrValidation)
	// ErrCustomerRequired is returned for a named sale without clienteNombre.
	ErrCustomerRequired = fmt.Errorf("clienteNombre is required when personaGeneral is false: %w", shared.ErrValidation)
	// ErrInvalidStatus rejects unknown estado filters.
	ErrInvalidStatus = fmt.Errorf("estado must be activa or desactivada: %w", shared.ErrValidation)
	// ErrInvalidID rejects malformed identifiers.
	ErrInvalidID = fmt.Errorf("invalid id: %w", shared.ErrValidation)
)

// LineError reports which requested line aborted a multi-line operation.
// The whole operation was rolled back; FailedAt is the zero-based index into
// the request.
type LineError struct {
	FailedAt int
	Reason   string
	Err      error
}

func newLineError(index int, err error) *LineError {
	return &LineError{FailedAt: index, Reason: err.Error(), Err: err}
}

func (e *LineError) Error() string {
	return fmt.Sprintf("sales: line %d: %s", e.FailedAt, e.Reason)
}

func (e *LineError) Unwrap() error { return e.Err }

// FailedIndex returns the index of the failing line.
func (e *LineError) FailedIndex() int { return e.FailedAt }

// AsLineError extracts a LineError from err.
func AsLineError(err error) (*LineError, bool) {
	var le *LineError
	ok := errors.As(err, &le)
	return le, ok
}

// ProductRef is the product snapshot embedded in line item responses.
type ProductRef struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"nombre"`
	Price decimal.Decimal `json:"precio"`
}

// LineItem is one product-quantity-price entry of a sale.
type LineItem struct {
	ID        uuid.UUID       `json:"id"`
	SaleID    uuid.UUID       `json:"ventaId"`
	ProductID uuid.UUID       `json:"productoId"`
	Position  int             `json:"posicion"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precioUnitario"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Product   *ProductRef     `json:"producto,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Sale is a customer sale with its line items and tax decision.
type Sale struct {
	ID                 uuid.UUID       `json:"id"`
	CustomerID         *string         `json:"clienteId"`
	CustomerName       string          `json:"clienteNombre"`
	CustomerTaxID      *string         `json:"clienteDNI"`
	WalkIn             bool            `json:"personaGeneral"`
	Lines              []LineItem      `json:"productos"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	IGV                decimal.Decimal `json:"igv"`
	ApplyIGV           bool            `json:"aplicarIGV"`
	IGVRate            decimal.Decimal `json:"porcentajeIGV"`
	Total              decimal.Decimal `json:"total"`
	Active             bool            `json:"estado"`
	DeactivationReason *string         `json:"motivoDesactivacion"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// TaxRecord is the creation-time snapshot of a sale's IGV decision.
type TaxRecord struct {
	ID        uuid.UUID       `json:"id"`
	SaleID    uuid.UUID       `json:"ventaId"`
	Apply     bool            `json:"aplicarIGV"`
	Rate      decimal.Decimal `json:"porcentajeIGV"`
	Amount    decimal.Decimal `json:"igv"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SaleRef is the parent summary attached to a line item view.
type SaleRef struct {
	ID        uuid.UUID       `json:"id"`
	Total     decimal.Decimal `json:"total"`
	Active    bool            `json:"estado"`
	CreatedAt time.Time       `json:"fecha"`
}

// LineView is a line item together with its owning sale summary.
type LineView struct {
	LineItem
	Sale SaleRef `json:"venta"`
}

// StatusFilter selects sales by active flag.
type StatusFilter string

const (
	StatusActive   StatusFilter = "activa"
	StatusInactive StatusFilter = "desactivada"
)

// ParseStatusFilter reads the estado query parameter; empty means activa.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	switch StatusFilter(raw) {
	case "", StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", ErrInvalidStatus
	}
}

// LineFor returns the line holding productID, if any.
func (s *Sale) LineFor(productID uuid.UUID) (*LineItem, bool) {
	for i := range s.Lines {
		if s.Lines[i].ProductID == productID {
			return &s.Lines[i], true
		}
	}
	return nil, false
}

// TaxRecord snapshots the current IGV decision of the sale.
func (s *Sale) TaxRecord(now time.Time) TaxRecord {
	return TaxRecord{
		ID:        uuid.New(),
		SaleID:    s.ID,
		Apply:     s.ApplyIGV,
		Rate:      s.IGVRate,
		Amount:    s.IGV,
		CreatedAt: now,
	}
}

// ParseID parses a sale or line identifier.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
