package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bodega/bodega-api/internal/app"
	_ "github.com/bodega/bodega-api/testing"
)

func TestMainReturnsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
