package sales

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bodega/bodega-api/internal/shared"
)

// LineRequest asks for quantity units of a product identified by id or,
// when no id is given, by exact name.
type LineRequest struct {
	ProductID *uuid.UUID `json:"productoId"`
	Name      string     `json:"nombre" validate:"required_without=ProductID,max=120"`
	Quantity  int        `json:"cantidad" validate:"gte=1"`
}

// CreateSaleInput is the typed body of crear_venta.
type CreateSaleInput struct {
	CustomerID     *string          `json:"clienteId" validate:"omitempty,max=64"`
	CustomerName   *string          `json:"clienteNombre" validate:"omitempty,max=120"`
	CustomerTaxID  *string          `json:"clienteDNI" validate:"omitempty,max=20"`
	WalkIn         *bool            `json:"personaGeneral"`
	ApplyIGV       *bool            `json:"aplicarIGV"`
	IGVRate        *decimal.Decimal `json:"porcentajeIGV" validate:"omitempty,gte=0,lte=100"`
	Lines          []LineRequest    `json:"productos" validate:"required,min=1,dive"`
	IdempotencyKey string           `json:"-"`
}

// AmendLine sets the absolute quantity of a product within a sale.
type AmendLine struct {
	ProductID uuid.UUID `json:"productoId" validate:"required"`
	Quantity  int       `json:"cantidad" validate:"gte=1"`
}

type amendInput struct {
	Lines []AmendLine `json:"productos" validate:"required,min=1,dive"`
}

// createCommand is CreateSaleInput after defaults and validation.
type createCommand struct {
	customerID    *string
	customerName  string
	customerTaxID *string
	walkIn        bool
	applyIGV      bool
	rate          decimal.Decimal
	lines         []LineRequest
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (in CreateSaleInput) normalized() CreateSaleInput {
	in.CustomerID = trimmed(in.CustomerID)
	in.CustomerName = trimmed(in.CustomerName)
	in.CustomerTaxID = trimmed(in.CustomerTaxID)
	if in.Lines != nil {
		lines := make([]LineRequest, len(in.Lines))
		for i, line := range in.Lines {
			line.Name = strings.TrimSpace(line.Name)
			if line.ProductID != nil && *line.ProductID == uuid.Nil {
				line.ProductID = nil
			}
			lines[i] = line
		}
		in.Lines = lines
	}
	return in
}

func (in CreateSaleInput) command(v *validator.Validate) (createCommand, error) {
	in = in.normalized()
	if err := validateInput(v, in); err != nil {
		return createCommand{}, err
	}
	cmd := createCommand{
		customerID:    in.CustomerID,
		customerTaxID: in.CustomerTaxID,
		walkIn:        true,
		applyIGV:      true,
		rate:          DefaultIGVRate,
		lines:         in.Lines,
	}
	if in.WalkIn != nil {
		cmd.walkIn = *in.WalkIn
	}
	if in.ApplyIGV != nil {
		cmd.applyIGV = *in.ApplyIGV
	}
	if in.IGVRate != nil {
		// sales.igv_rate is NUMERIC(5,2); amendments recompute from the stored rate.
		cmd.rate = in.IGVRate.Round(2)
	}
	switch {
	case in.CustomerName != nil:
		cmd.customerName = *in.CustomerName
	case cmd.walkIn:
		cmd.customerName = DefaultCustomerName
	default:
		return createCommand{}, ErrCustomerRequired
	}
	return cmd, nil
}

func validateAmend(v *validator.Validate, lines []AmendLine) error {
	if err := validateInput(v, amendInput{Lines: lines}); err != nil {
		return err
	}
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for i, line := range lines {
		if _, dup := seen[line.ProductID]; dup {
			return newLineError(i, ErrDuplicateProduct)
		}
		seen[line.ProductID] = struct{}{}
	}
	return nil
}

// validateInput runs the struct tags and reports the first failure as a
// sales sentinel, wrapped in a LineError when it belongs to productos[i].
func validateInput(v *validator.Validate, input any) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%v: %w", err, shared.ErrValidation)
	}
	fe := fieldErrs[0]
	kind := fieldKind(fe)
	if idx, ok := lineIndex(fe.Namespace()); ok {
		return newLineError(idx, kind)
	}
	return kind
}

func fieldKind(fe validator.FieldError) error {
	switch {
	case fe.Field() == "productos":
		return ErrNoLines
	case fe.Field() == "cantidad":
		return ErrInvalidQuantity
	case fe.Field() == "porcentajeIGV":
		return ErrInvalidRate
	case fe.Field() == "productoId", fe.Field() == "nombre" && fe.Tag() == "required_without":
		return ErrMissingProductRef
	}
	tag := fe.Tag()
	if fe.Param() != "" {
		tag += "=" + fe.Param()
	}
	return fmt.Errorf("%s: failed %s: %w", fe.Field(), tag, shared.ErrValidation)
}

// lineIndex extracts i from a namespace such as "CreateSaleInput.productos[2].cantidad".
func lineIndex(namespace string) (int, bool) {
	const marker = "productos["
	start := strings.Index(namespace, marker)
	if start < 0 {
		return 0, false
	}
	rest := namespace[start+len(marker):]
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return idx, true
}
