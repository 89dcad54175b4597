package sales

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineSubtotal returns quantity × unitPrice rounded to cents.
func LineSubtotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// ComputeIGV returns subtotal × rate / 100 rounded to cents, or zero when
// IGV does not apply.
func ComputeIGV(subtotal, rate decimal.Decimal, apply bool) decimal.Decimal {
	if !apply {
		return decimal.Zero
	}
	return subtotal.Mul(rate).Div(hundred).Round(2)
}

// Recalculate derives subtotal, IGV and total from the current line items
// using the sale's stored tax decision. Afterwards
// Total == Subtotal + IGV and Subtotal == Σ line subtotals.
func (s *Sale) Recalculate() {
	subtotal := decimal.Zero
	for _, line := range s.Lines {
		subtotal = subtotal.Add(line.Subtotal)
	}
	s.Subtotal = subtotal
	s.IGV = ComputeIGV(subtotal, s.IGVRate, s.ApplyIGV)
	s.Total = s.Subtotal.Add(s.IGV)
}
