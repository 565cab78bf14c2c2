package devapi

import (
	"context"
	"fmt"

	"github.com/five82/kiosk/internal/shop"
)

// SeedCatalog is installed for tenants that have no products yet.
var SeedCatalog = []shop.Product{
	{
		ID:          "prod-mug",
		Name:        "Enamel Mug",
		Description: "Speckled enamel camp mug.",
		Price:       1800,
		Variants: []shop.Variant{
			{ID: "mug-12oz", Name: "12 oz", Price: 1800, Stock: 40},
			{ID: "mug-16oz", Name: "16 oz", Price: 2200, Stock: 25},
		},
	},
	{
		ID:          "prod-tee",
		Name:        "Logo Tee",
		Description: "Heavyweight cotton t-shirt.",
		Price:       2800,
		Variants: []shop.Variant{
			{ID: "tee-s", Name: "Small", Stock: 12},
			{ID: "tee-m", Name: "Medium", Stock: 30},
			{ID: "tee-l", Name: "Large", Stock: 18},
			{ID: "tee-xl", Name: "X-Large", Price: 3200, Stock: 6},
		},
	},
	{
		ID:          "prod-tote",
		Name:        "Canvas Tote",
		Description: "Natural canvas tote with inside pocket.",
		Price:       2400,
		Variants: []shop.Variant{
			{ID: "tote-natural", Name: "Natural", Stock: 50},
			{ID: "tote-black", Name: "Black", Stock: 20},
		},
	},
	{
		ID:          "prod-poster",
		Name:        "Risograph Poster",
		Description: "Two-color print on recycled stock.",
		Price:       3500,
		Variants: []shop.Variant{
			{ID: "poster-a3", Name: "A3", Stock: 15},
			{ID: "poster-a2", Name: "A2", Price: 4500, Stock: 8},
		},
	},
	{
		ID:          "prod-stickers",
		Name:        "Sticker Pack",
		Description: "Six die-cut vinyl stickers.",
		Price:       600,
		Variants: []shop.Variant{
			{ID: "stickers-6", Name: "Pack of 6", Stock: 200},
		},
	},
}

// Seed installs SeedCatalog for tenant unless it already has products.
func (s *Store) Seed(ctx context.Context, tenant string) error {
	has, err := s.HasCatalog(ctx, tenant)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	for i, p := range SeedCatalog {
		if err := s.PutProduct(ctx, tenant, i, p); err != nil {
			return fmt.Errorf("seed %s: %w", p.ID, err)
		}
	}
	return nil
}
