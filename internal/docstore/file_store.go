package docstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

const (
	journalOpPut    = "put"
	journalOpDelete = "delete"
)

type journalEntry struct {
	Op         string          `json:"op"`
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Doc        json.RawMessage `json:"doc,omitempty"`
}

// FileStore is a document store backed by an append-only JSON journal. Every
// write is synced to disk before it is acknowledged; the full state is
// replayed into memory on open.
type FileStore struct {
	mu          sync.RWMutex
	f           *os.File
	collections map[string]map[string][]byte
}

// NewFileStore opens (or creates) the journal at path and replays it.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		f:           f,
		collections: make(map[string]map[string][]byte),
	}
	if err := s.replay(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 2); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) replay() error {
	scanner := bufio.NewScanner(s.f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("corrupt journal entry: %w", err)
		}
		s.apply(entry)
	}
	return scanner.Err()
}

func (s *FileStore) apply(entry journalEntry) {
	switch entry.Op {
	case journalOpPut:
		docs, ok := s.collections[entry.Collection]
		if !ok {
			docs = make(map[string][]byte)
			s.collections[entry.Collection] = docs
		}
		docs[entry.ID] = append([]byte(nil), entry.Doc...)
	case journalOpDelete:
		delete(s.collections[entry.Collection], entry.ID)
	}
}

// append journals the entry and syncs before it is applied to memory.
func (s *FileStore) append(entry journalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	n, err := s.f.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	if n != len(data)+1 {
		return fmt.Errorf("partial write: wrote %d of %d bytes", n, len(data)+1)
	}

	if err := s.f.Sync(); err != nil {
		return err
	}

	s.apply(entry)
	return nil
}

func (s *FileStore) Get(ctx context.Context, collection, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if collection == "" || id == "" {
		return nil, false, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), doc...), true, nil
}

func (s *FileStore) Put(ctx context.Context, collection, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.append(journalEntry{
		Op:         journalOpPut,
		Collection: collection,
		ID:         id,
		Doc:        append([]byte(nil), doc...),
	})
}

func (s *FileStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.append(journalEntry{
		Op:         journalOpDelete,
		Collection: collection,
		ID:         id,
	})
}

func (s *FileStore) Keys(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the underlying journal file handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
