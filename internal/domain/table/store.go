package table

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Store persists named tables. Put replaces any table with the same name,
// which is what makes every stage idempotent.
type Store interface {
	Put(ctx context.Context, t *Table) error
	Get(ctx context.Context, name string) (*Table, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// ErrNotFound builds the error returned by Get for an unknown table.
func ErrNotFound(name string) error {
	return errors.New(errors.ErrCodeTableNotFound, "table not found").WithDetail(name)
}

// MemoryStore is an in-process Store. Tables are copied on Put and Get so
// callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*Table)}
}

func (s *MemoryStore) Put(ctx context.Context, t *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.Name == "" {
		return errors.InvalidParam("table must have a name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name] = t.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, name string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, ErrNotFound(name)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
