package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"sjsage522/flatworker/pkg/errors"
)

// MemoryStore keeps listings in process memory. Transactions are serialized;
// a transaction's inserts become visible only on Commit. IDs of rolled back
// inserts are not reused.
type MemoryStore struct {
	txMu     sync.Mutex
	mu       sync.RWMutex
	listings map[string]Listing
	nextID   int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]Listing)}
}

// Begin starts a transaction, waiting for any open one to finish
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	s.txMu.Lock()
	return &memoryTx{store: s}, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// All returns the committed listings ordered by id
func (s *MemoryStore) All() []Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryTx struct {
	store  *MemoryStore
	staged []Listing
	done   bool
}

func (t *memoryTx) Exists(ctx context.Context, externalID string) (bool, error) {
	if t.done {
		return false, errors.NewStorage("memory", "transaction already closed", nil)
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.listings[externalID]
	return ok, nil
}

func (t *memoryTx) InsertBatch(ctx context.Context, listings []Listing) (int, error) {
	if t.done {
		return 0, errors.NewStorage("memory", "transaction already closed", nil)
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	now := time.Now()
	inserted := 0
	for i := range listings {
		l := &listings[i]
		if _, ok := t.store.listings[l.ExternalID]; ok || t.isStaged(l.ExternalID) {
			l.ID = 0
			continue
		}
		t.store.nextID++
		l.ID = t.store.nextID
		l.CreatedAt = now
		t.staged = append(t.staged, *l)
		inserted++
	}
	return inserted, nil
}

func (t *memoryTx) isStaged(externalID string) bool {
	for _, l := range t.staged {
		if l.ExternalID == externalID {
			return true
		}
	}
	return false
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.NewStorage("memory", "transaction already closed", nil)
	}

	t.store.mu.Lock()
	for _, l := range t.staged {
		t.store.listings[l.ExternalID] = l
	}
	t.store.mu.Unlock()

	t.finish()
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	if !t.done {
		t.finish()
	}
	return nil
}

func (t *memoryTx) finish() {
	t.staged = nil
	t.done = true
	t.store.txMu.Unlock()
}
