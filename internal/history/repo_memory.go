package history

import (
	"context"
	"sort"
	"sync"

	carelink_errors "carelink/pkg/errors"
)

// MemoryRepository is the in-memory Repository used by tests and local
// development.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]Entry)}
}

func (r *MemoryRepository) Insert(ctx context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.CallID]; ok {
		return nil
	}
	r.entries[e.CallID] = *e
	return nil
}

func (r *MemoryRepository) GetByCallID(ctx context.Context, callID string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[callID]
	if !ok {
		return Entry{}, carelink_errors.ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]Entry, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Entry
	for _, e := range r.entries {
		if e.CallerID == userID || e.CalleeID == userID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })

	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}
