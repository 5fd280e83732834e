package gate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marplemr/wt-contracts/identity"
)

// MemoryCallStore keeps pending calls in process memory.
type MemoryCallStore struct {
	mu      sync.RWMutex
	records map[common.Hash]PendingCall
}

func NewMemoryCallStore() *MemoryCallStore {
	return &MemoryCallStore{records: make(map[common.Hash]PendingCall)}
}

func (s *MemoryCallStore) Create(ctx context.Context, rec PendingCall) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Fingerprint]; ok {
		return fmt.Errorf("fingerprint %s: %w", rec.Fingerprint.Hex(), identity.ErrDuplicateCall)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records[rec.Fingerprint] = rec
	return nil
}

func (s *MemoryCallStore) Get(ctx context.Context, fp common.Hash) (PendingCall, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fp]
	return rec, ok, nil
}

func (s *MemoryCallStore) Approve(ctx context.Context, fp common.Hash) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fp]
	if !ok {
		return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrNotFound)
	}
	if rec.Finalized {
		return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrAlreadyFinalized)
	}
	rec.Approved = true
	s.records[fp] = rec
	return nil
}

func (s *MemoryCallStore) Finalize(ctx context.Context, fp common.Hash, succeeded bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fp]
	if !ok {
		return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrNotFound)
	}
	if rec.Finalized {
		return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrAlreadyFinalized)
	}
	now := time.Now().UTC()
	rec.Finalized = true
	rec.Succeeded = succeeded
	rec.FinalizedAt = &now
	s.records[fp] = rec
	return nil
}

func (s *MemoryCallStore) ListPending(ctx context.Context, resource identity.Address) ([]PendingCall, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PendingCall
	for _, rec := range s.records {
		if rec.Finalized {
			continue
		}
		if (resource != identity.Address{}) && rec.Resource != resource {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
