package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/docstore"
)

// Collection names in the shared document store.
const (
	CollectionProducts = "products"
	CollectionUsers    = "users"
	CollectionOrders   = "orders"
)

// ProductStore reads and writes products through the document store.
type ProductStore struct {
	docs docstore.Store
}

// NewProductStore constructs a ProductStore over the given document store.
func NewProductStore(docs docstore.Store) *ProductStore {
	return &ProductStore{docs: docs}
}

// Product loads a product document by id.
func (s *ProductStore) Product(ctx context.Context, id string) (Product, bool, error) {
	doc, ok, err := s.docs.Get(ctx, CollectionProducts, id)
	if err != nil || !ok {
		return Product{}, false, err
	}

	var product Product
	if err := json.Unmarshal(doc, &product); err != nil {
		return Product{}, false, fmt.Errorf("decode product %s: %w", id, err)
	}
	return product, true, nil
}

// SaveProduct writes the product document back. The write is durable before
// this returns.
func (s *ProductStore) SaveProduct(ctx context.Context, product Product) error {
	if product.ID == "" {
		return ErrProductIDRequired
	}

	doc, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return s.docs.Put(ctx, CollectionProducts, product.ID, doc)
}

// UserStore reads and writes users through the document store.
type UserStore struct {
	docs docstore.Store
}

// NewUserStore constructs a UserStore over the given document store.
func NewUserStore(docs docstore.Store) *UserStore {
	return &UserStore{docs: docs}
}

// User loads a user document by id.
func (s *UserStore) User(ctx context.Context, id string) (User, bool, error) {
	doc, ok, err := s.docs.Get(ctx, CollectionUsers, id)
	if err != nil || !ok {
		return User{}, false, err
	}

	var user User
	if err := json.Unmarshal(doc, &user); err != nil {
		return User{}, false, fmt.Errorf("decode user %s: %w", id, err)
	}
	return user, true, nil
}

// SaveUser writes the user document back.
func (s *UserStore) SaveUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return ErrUserIDRequired
	}

	doc, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.docs.Put(ctx, CollectionUsers, user.ID, doc)
}
