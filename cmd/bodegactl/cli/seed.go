package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/bodega/bodega-api/internal/platform/db"
	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/shared"
)

// sampleCatalog is the starter stock loaded by `bodegactl seed`.
var sampleCatalog = []products.ProductInput{
	{Name: "Leche Gloria 400g", Price: decimal.RequireFromString("3.80"), Stock: 48, Category: "lacteos", Supplier: strPtr("Gloria S.A.")},
	{Name: "Arroz Costeño 1kg", Price: decimal.RequireFromString("4.50"), Stock: 30, Category: "abarrotes", Supplier: strPtr("Costeño Alimentos")},
	{Name: "Aceite Primor 1L", Price: decimal.RequireFromString("9.90"), Stock: 20, Category: "abarrotes", Supplier: strPtr("Alicorp")},
	{Name: "Azúcar Rubia 1kg", Price: decimal.RequireFromString("3.70"), Stock: 25, Category: "abarrotes"},
	{Name: "Inca Kola 500ml", Price: decimal.RequireFromString("2.50"), Stock: 60, Category: "bebidas", Supplier: strPtr("Lindley")},
	{Name: "Pan Francés", Price: decimal.RequireFromString("0.20"), Stock: 150, Category: "panaderia"},
	{Name: "Huevos (unidad)", Price: decimal.RequireFromString("0.60"), Stock: 90, Category: "frescos"},
	{Name: "Atún Florida 170g", Price: decimal.RequireFromString("6.20"), Stock: 4, Category: "conservas", Supplier: strPtr("Tecnológica de Alimentos")},
}

func strPtr(s string) *string { return &s }

// catalogSeeder is the subset of the catalog service used for seeding.
type catalogSeeder interface {
	GetByName(ctx context.Context, name string) ([]products.Product, error)
	Create(ctx context.Context, input products.ProductInput) (products.Product, error)
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample product catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := environment()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2, MinConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()
			svc := products.NewService(products.NewRepository(pool), nil, shared.NewAuditLogger(pool).WithSource("bodegactl"), logger)
			created, err := seedCatalog(ctx, svc, sampleCatalog, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger.Info("catalog seeded", slog.Int("created", created))
			return nil
		},
	}
}

// seedCatalog creates every product whose exact name is not yet present.
func seedCatalog(ctx context.Context, svc catalogSeeder, catalog []products.ProductInput, out io.Writer) (int, error) {
	created := 0
	for _, in := range catalog {
		existing, err := svc.GetByName(ctx, in.Name)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return created, err
		}
		if hasExactName(existing, in.Name) {
			fmt.Fprintf(out, "= %s\n", in.Name)
			continue
		}
		if _, err := svc.Create(ctx, in); err != nil {
			return created, fmt.Errorf("seed %q: %w", in.Name, err)
		}
		fmt.Fprintf(out, "+ %s\n", in.Name)
		created++
	}
	return created, nil
}

func hasExactName(list []products.Product, name string) bool {
	for _, p := range list {
		if p.Name == name {
			return true
		}
	}
	return false
}
