package procurement

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput is one requested supplier item.
type LineInput struct {
	ProductID *uuid.UUID      `json:"productoId"`
	Name      string          `json:"nombre" validate:"required,max=120"`
	Quantity  int             `json:"cantidad" validate:"gte=1"`
	UnitPrice decimal.Decimal `json:"precioUnitario" validate:"gte=0"`
}

// OrderInput is the body of crear_pedido and actualizar.
type OrderInput struct {
	Supplier   string      `json:"proveedor" validate:"required,max=120"`
	OrderedAt  *Date       `json:"fechaCompra"`
	DeliveryAt *Date       `json:"fechaEntrega"`
	Lines      []LineInput `json:"productos" validate:"required,min=1,dive"`
}

func (in OrderInput) normalized() OrderInput {
	in.Supplier = strings.TrimSpace(in.Supplier)
	lines := make([]LineInput, len(in.Lines))
	for i, l := range in.Lines {
		l.Name = strings.TrimSpace(l.Name)
		if l.ProductID != nil && *l.ProductID == uuid.Nil {
			l.ProductID = nil
		}
		lines[i] = l
	}
	in.Lines = lines
	return in
}

func (in OrderInput) lines(orderID uuid.UUID) []Line {
	out := make([]Line, len(in.Lines))
	for i, l := range in.Lines {
		out[i] = Line{
			ID:        uuid.New(),
			OrderID:   orderID,
			Position:  i,
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return out
}
