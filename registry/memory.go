package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marplemr/wt-contracts/identity"
)

// MemoryResourceStore is the in-process ResourceStore, used by tests
// and embedders that bring their own persistence.
type MemoryResourceStore struct {
	mu      sync.RWMutex
	records map[identity.Address]Record
}

func NewMemoryResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{records: make(map[identity.Address]Record)}
}

func (s *MemoryResourceStore) Put(ctx context.Context, rec Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Address]; ok {
		return ErrResourceExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records[rec.Address] = rec
	return nil
}

func (s *MemoryResourceStore) Get(ctx context.Context, addr identity.Address) (Record, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[addr]
	if !ok {
		return Record{}, ErrResourceNotFound
	}
	return rec, nil
}

func (s *MemoryResourceStore) Update(ctx context.Context, rec Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Address]; !ok {
		return ErrResourceNotFound
	}
	s.records[rec.Address] = rec
	return nil
}

func (s *MemoryResourceStore) Delete(ctx context.Context, addr identity.Address) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[addr]; !ok {
		return ErrResourceNotFound
	}
	delete(s.records, addr)
	return nil
}

func (s *MemoryResourceStore) List(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out, nil
}

// MemoryChildStore is the in-process ChildStore.
type MemoryChildStore struct {
	mu       sync.RWMutex
	children map[identity.Address]map[identity.Address]bool
}

func NewMemoryChildStore() *MemoryChildStore {
	return &MemoryChildStore{children: make(map[identity.Address]map[identity.Address]bool)}
}

func (s *MemoryChildStore) Add(ctx context.Context, parent, child identity.Address) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.children[parent]
	if !ok {
		set = make(map[identity.Address]bool)
		s.children[parent] = set
	}
	if set[child] {
		return ErrChildRegistered
	}
	set[child] = true
	return nil
}

func (s *MemoryChildStore) Remove(ctx context.Context, parent, child identity.Address) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.children[parent]
	if set == nil || !set[child] {
		return ErrChildNotFound
	}
	delete(set, child)
	return nil
}

func (s *MemoryChildStore) IsChild(ctx context.Context, parent, child identity.Address) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.children[parent][child], nil
}

func (s *MemoryChildStore) Children(ctx context.Context, parent identity.Address) ([]identity.Address, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.children[parent]
	out := make([]identity.Address, 0, len(set))
	for child := range set {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out, nil
}
