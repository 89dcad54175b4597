package products

import (
	"context"
	"fmt"
)

// MoveStock applies delta to p through ApplyStockDelta, then persists the
// product (version checked) and its ledger entry. p is refreshed with the
// stored row on success.
func MoveStock(ctx context.Context, w StockWriter, p *Product, delta int, ref MovementRef) (StockMovement, error) {
	next := *p
	mv, err := next.ApplyStockDelta(delta, ref)
	if err != nil {
		return StockMovement{}, err
	}
	updated, err := w.Update(ctx, next)
	if err != nil {
		return StockMovement{}, err
	}
	if err := w.InsertMovement(ctx, mv); err != nil {
		return StockMovement{}, fmt.Errorf("products: record movement: %w", err)
	}
	*p = updated
	return mv, nil
}
