package products_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/shared"
)

func TestApplyStockDeltaDerivesActive(t *testing.T) {
	p := products.Product{ID: uuid.New(), Name: "Leche", Stock: 3, Active: true}

	mv, err := p.ApplyStockDelta(-3, products.MovementRef{Reason: products.ReasonSale})
	require.NoError(t, err)
	require.Equal(t, 0, p.Stock)
	require.False(t, p.Active)
	require.Equal(t, 3, mv.StockBefore)
	require.Equal(t, 0, mv.StockAfter)

	_, err = p.ApplyStockDelta(5, products.MovementRef{Reason: products.ReasonPurchase})
	require.NoError(t, err)
	require.Equal(t, 5, p.Stock)
	require.True(t, p.Active)
}

func TestApplyStockDeltaRejectsNegativeResult(t *testing.T) {
	p := products.Product{ID: uuid.New(), Name: "Leche", Stock: 2, Active: true}

	_, err := p.ApplyStockDelta(-5, products.MovementRef{Reason: products.ReasonSale})
	require.ErrorIs(t, err, products.ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 2, p.Stock)
	require.True(t, p.Active)
}

func TestSetActiveModes(t *testing.T) {
	withStock := products.Product{Stock: 4, Active: true}
	require.ErrorIs(t, withStock.SetActive(false, products.ModeAuto), products.ErrStockRemaining)
	require.True(t, withStock.Active)
	require.NoError(t, withStock.SetActive(false, products.ModeManual))
	require.False(t, withStock.Active)
	require.True(t, withStock.ManualOverride)
	require.NoError(t, withStock.SetActive(true, products.ModeManual))
	require.False(t, withStock.ManualOverride)

	empty := products.Product{Stock: 0, Active: false}
	require.ErrorIs(t, empty.SetActive(true, products.ModeAuto), products.ErrNoStock)
	require.NoError(t, empty.SetActive(true, products.ModeManual))
	require.True(t, empty.Active)
}

func TestParseActivationMode(t *testing.T) {
	mode, err := products.ParseActivationMode("")
	require.NoError(t, err)
	require.Equal(t, products.ModeManual, mode)

	mode, err = products.ParseActivationMode("AUTO")
	require.NoError(t, err)
	require.Equal(t, products.ModeAuto, mode)

	_, err = products.ParseActivationMode("sometimes")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSearchNameFoldsAccentsAndCase(t *testing.T) {
	require.Equal(t, "azucar rubia", products.SearchName("  Azúcar   RUBIA "))
	require.Equal(t, "pina", products.SearchName("Piña"))
}
