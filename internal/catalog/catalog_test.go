package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/docstore"
)

func TestNewProduct(t *testing.T) {
	product, err := NewProduct("prod-1", "Widget", 19.99, 3, "12 Dock Road")
	if err != nil {
		t.Fatalf("NewProduct: %v", err)
	}
	if product.ID != "prod-1" || product.InStock != 3 {
		t.Fatalf("unexpected product: %+v", product)
	}
}

func TestNewProduct_Invalid(t *testing.T) {
	if _, err := NewProduct("", "Widget", 1, 1, ""); !errors.Is(err, ErrProductIDRequired) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewProduct("prod-1", "Widget", -1, 1, ""); !errors.Is(err, ErrNegativePrice) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewProduct("prod-1", "Widget", 1, -1, ""); !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewUser_Invalid(t *testing.T) {
	if _, err := NewUser("", "Ada", ""); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProductStore_RoundTrip(t *testing.T) {
	store := NewProductStore(docstore.NewMemoryStore())

	want := Product{ID: "prod-1", Name: "Widget", Price: 19.99, InStock: 3}
	if err := store.SaveProduct(context.Background(), want); err != nil {
		t.Fatalf("SaveProduct: %v", err)
	}

	got, ok, err := store.Product(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if !ok {
		t.Fatalf("expected product found")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if _, ok, err := store.Product(context.Background(), "missing"); err != nil || ok {
		t.Fatalf("expected missing product, ok=%v err=%v", ok, err)
	}
}

func TestProductStore_SaveRequiresID(t *testing.T) {
	store := NewProductStore(docstore.NewMemoryStore())
	if err := store.SaveProduct(context.Background(), Product{}); !errors.Is(err, ErrProductIDRequired) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserStore_RoundTrip(t *testing.T) {
	store := NewUserStore(docstore.NewMemoryStore())

	want := User{ID: "user-1", Name: "Ada Fields", Address: "47 Elm Street"}
	if err := store.SaveUser(context.Background(), want); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, ok, err := store.User(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if !ok {
		t.Fatalf("expected user found")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
