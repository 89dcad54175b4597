package procurement

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bodega/bodega-api/internal/shared"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusPending   Status = "pendiente"
	StatusDelivered Status = "entregado"
	StatusCancelled Status = "cancelado"
)

const numberPrefix = "PED-"

var (
	// ErrNotFound indicates the purchase order does not exist.
	ErrNotFound = fmt.Errorf("purchase order: %w", shared.ErrNotFound)
	// ErrCancelled blocks changes to a cancelled order.
	ErrCancelled = fmt.Errorf("purchase order is cancelled: %w", shared.ErrConflict)
	// ErrNotPending blocks receiving or cancelling an order that already left pendiente.
	ErrNotPending = fmt.Errorf("purchase order is not pendiente: %w", shared.ErrConflict)
	// ErrInvalidID rejects malformed identifiers.
	ErrInvalidID = fmt.Errorf("invalid id: %w", shared.ErrValidation)
	// ErrInvalidNumber rejects an empty numeroPedido.
	ErrInvalidNumber = fmt.Errorf("numeroPedido is required: %w", shared.ErrValidation)
)

// FormatNumber renders the nth order number, PED-01, PED-02 and so on.
func FormatNumber(n int64) string {
	return fmt.Sprintf("%s%02d", numberPrefix, n)
}

// Date is a calendar day that also accepts full RFC 3339 timestamps.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its UTC calendar day.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	if raw == "" || raw == "null" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		*d = NewDate(t)
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("fecha %q: %w", raw, shared.ErrValidation)
	}
	*d = NewDate(t)
	return nil
}

// Line is one supplier item of a purchase order.
type Line struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"pedidoId"`
	Position  int             `json:"posicion"`
	ProductID *uuid.UUID      `json:"productoId,omitempty"`
	Name      string          `json:"nombre"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precioUnitario"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Order is a supplier purchase order.
type Order struct {
	ID         uuid.UUID       `json:"id"`
	Number     string          `json:"numeroPedido"`
	Supplier   string          `json:"proveedor"`
	OrderedAt  Date            `json:"fechaCompra"`
	DeliveryAt *Date           `json:"fechaEntrega"`
	Lines      []Line          `json:"productos"`
	Total      decimal.Decimal `json:"totalCompra"`
	Status     Status          `json:"estado"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Recalculate derives line subtotals and the order total.
func (o *Order) Recalculate() {
	total := decimal.Zero
	for i := range o.Lines {
		o.Lines[i].Subtotal = o.Lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(o.Lines[i].Quantity))).Round(2)
		total = total.Add(o.Lines[i].Subtotal)
	}
	o.Total = total
}

// LineError reports which order line aborted a receipt.
type LineError struct {
	FailedAt int
	Err      error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("procurement: line %d: %v", e.FailedAt, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// FailedIndex returns the index of the failing line.
func (e *LineError) FailedIndex() int { return e.FailedAt }

// ParseID parses an order identifier.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// AsLineError extracts a LineError from err.
func AsLineError(err error) (*LineError, bool) {
	var le *LineError
	ok := errors.As(err, &le)
	return le, ok
}
