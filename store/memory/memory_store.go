// Package memory is an in-process TableClient used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lockbox-app/lockbox-migrate/resources"
	"github.com/lockbox-app/lockbox-migrate/store"
)

// MemoryStore keeps tables as maps keyed by the primary key attribute's
// string value. It is safe for concurrent use by the per-table goroutines
// the driver spawns.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]*table

	// PutHook, when set, runs before every PutItem and may return an error
	// to simulate per-item write failures.
	PutHook func(table string, rec resources.Record) error
}

type table struct {
	keyAttr string
	status  store.ReadinessStatus
	items   map[string]resources.Record
}

// New returns an empty store with no tables.
func New() *MemoryStore {
	return &MemoryStore{tables: map[string]*table{}}
}

// CreateTable registers an active table keyed by keyAttr.
func (s *MemoryStore) CreateTable(name, keyAttr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{
		keyAttr: keyAttr,
		status:  store.StatusActive,
		items:   map[string]resources.Record{},
	}
}

// SetStatus overrides the readiness status reported for a table.
func (s *MemoryStore) SetStatus(name string, status store.ReadinessStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		t.status = status
	}
}

// Len returns the number of records currently in the table.
func (s *MemoryStore) Len(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return len(t.items)
	}
	return 0
}

func (s *MemoryStore) ScanAll(ctx context.Context, name string, fn func(resources.Record) bool) (int64, error) {
	s.mu.Lock()
	t, ok := s.tables[name]
	if !ok {
		s.mu.Unlock()
		return 0, store.NewNotFound(name)
	}
	// stable order so scans are restartable and deterministic
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	records := make([]resources.Record, 0, len(keys))
	for _, k := range keys {
		records = append(records, t.items[k].Copy())
	}
	s.mu.Unlock()

	var count int64
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if !fn(rec) {
			break
		}
		count++
	}
	return count, nil
}

func (s *MemoryStore) PutItem(ctx context.Context, name string, rec resources.Record) error {
	if hook := s.PutHook; hook != nil {
		if err := hook(name, rec); err != nil {
			return &store.WriteFailure{Table: name, Reason: store.ReasonNetwork, Cause: err}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return &store.WriteFailure{
			Table:  name,
			Reason: store.ReasonValidation,
			Cause:  store.NewNotFound(name),
		}
	}
	key, ok := rec.KeyString(t.keyAttr)
	if !ok {
		return &store.WriteFailure{
			Table:  name,
			Reason: store.ReasonValidation,
			Cause:  fmt.Errorf("record missing key attribute %q", t.keyAttr),
		}
	}
	t.items[key] = rec.Copy()
	return nil
}

func (s *MemoryStore) Describe(ctx context.Context, name string) (store.ReadinessState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return store.ReadinessState{Status: store.StatusNotFound}, nil
	}
	if t.status == store.StatusTransitioning {
		return store.ReadinessState{Status: t.status, Detail: "CREATING"}, nil
	}
	return store.ReadinessState{Status: t.status}, nil
}

func (s *MemoryStore) DeleteTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}
