package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
)

type seedData struct {
	Products []catalog.Product `json:"products"`
	Users    []catalog.User    `json:"users"`
}

// defaultSeed backs a fresh store so the demo flow works out of the box.
var defaultSeed = seedData{
	Products: []catalog.Product{
		{
			ID:               "prod-1",
			Name:             "Self-Healing Robot Vacuum",
			Price:            299.99,
			InStock:          3,
			WarehouseAddress: "12 Dock Road, Rotterdam",
		},
		{
			ID:               "prod-2",
			Name:             "Smart Garden Sensor Kit",
			Price:            89.50,
			InStock:          10,
			WarehouseAddress: "12 Dock Road, Rotterdam",
		},
	},
	Users: []catalog.User{
		{ID: "user-1", Name: "Ada Fields", Address: "47 Elm Street, Springfield"},
		{ID: "user-2", Name: "Noor Hassan", Address: "9 Canal View, Amsterdam"},
	},
}

// seedCatalog loads products and users into the store. SEED_FILE overrides
// the built-in data; already-present documents are left alone so restarts do
// not reset live stock.
func seedCatalog(ctx context.Context, products *catalog.ProductStore, users *catalog.UserStore) error {
	data := defaultSeed

	if path := strings.TrimSpace(os.Getenv("SEED_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read SEED_FILE: %w", err)
		}
		data = seedData{}
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode SEED_FILE: %w", err)
		}
	}

	for _, product := range data.Products {
		if _, ok, err := products.Product(ctx, product.ID); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := products.SaveProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}

	for _, user := range data.Users {
		if _, ok, err := users.User(ctx, user.ID); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := users.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
	}

	return nil
}
