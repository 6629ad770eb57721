package docstore

import (
	"context"
	"errors"
)

// MultiStore fans writes out to several stores and reads from the first.
type MultiStore struct {
	stores []Store
}

// NewMultiStore constructs a store that writes to each store in sequence.
// The first store is authoritative for reads.
func NewMultiStore(stores ...Store) *MultiStore {
	return &MultiStore{stores: stores}
}

func (m *MultiStore) Get(ctx context.Context, collection, id string) ([]byte, bool, error) {
	if len(m.stores) == 0 {
		return nil, false, nil
	}
	return m.stores[0].Get(ctx, collection, id)
}

// Put forwards the document to each store, collecting errors so every store
// gets a chance to write.
func (m *MultiStore) Put(ctx context.Context, collection, id string, doc []byte) error {
	var errs []error
	for _, store := range m.stores {
		if err := store.Put(ctx, collection, id, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiStore) Delete(ctx context.Context, collection, id string) error {
	var errs []error
	for _, store := range m.stores {
		if err := store.Delete(ctx, collection, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiStore) Keys(ctx context.Context, collection string) ([]string, error) {
	if len(m.stores) == 0 {
		return nil, nil
	}
	return m.stores[0].Keys(ctx, collection)
}
