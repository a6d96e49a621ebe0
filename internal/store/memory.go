package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"carelink/internal/domain/call"
	carelink_errors "carelink/pkg/errors"
)

const subscriberBuffer = 16

// MemoryStore is an in-memory RecordStore for tests and local development.
// Transitions take the store lock, so the conditional-update guarantee
// holds the same way it does against the real backend.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*call.Record
	subs    map[string]map[int]chan *call.Record
	nextSub int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*call.Record),
		subs:    make(map[string]map[int]chan *call.Record),
		now:     time.Now,
	}
}

// SetClock overrides the store-assigned timestamp source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Create(ctx context.Context, rec *call.Record) error {
	if rec == nil || rec.CallID == "" || !rec.Status.Valid() {
		return carelink_errors.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.CallID]; ok {
		return carelink_errors.ErrInvalidInput
	}
	cp := rec.Clone()
	cp.Timestamp = s.now()
	s.records[rec.CallID] = cp
	rec.Timestamp = cp.Timestamp
	if cp.Status == call.StatusInitiated {
		s.notifyLocked(cp)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (*call.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	if !ok {
		return nil, carelink_errors.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Transition(ctx context.Context, callID string, to call.Status) (bool, *call.Record, error) {
	if !to.Valid() {
		return false, nil, carelink_errors.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	if !ok {
		return false, nil, carelink_errors.ErrNotFound
	}
	if !rec.Status.CanTransition(to) {
		return false, rec.Clone(), nil
	}
	rec.Status = to
	rec.Stamp(to, s.now())
	return true, rec.Clone(), nil
}

// FindByCallee returns the most recently created record addressed to the
// callee, or nil. Query-by-field-equality mirrors the real store's
// capability backing SubscribeIncoming.
func (s *MemoryStore) FindByCallee(calleeID string) *call.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *call.Record
	for _, rec := range s.records {
		if rec.CalleeID != calleeID {
			continue
		}
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
	}
	if latest == nil {
		return nil
	}
	return latest.Clone()
}

func (s *MemoryStore) SubscribeIncoming(ctx context.Context, calleeID string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan *call.Record, subscriberBuffer)
	// Replay offers that were already pending, so a subscriber arriving
	// (or reconnecting) after the propose still sees the prompt.
	for _, rec := range s.pendingLocked(calleeID) {
		select {
		case ch <- rec:
		default:
		}
	}
	id := s.nextSub
	s.nextSub++
	if s.subs[calleeID] == nil {
		s.subs[calleeID] = make(map[int]chan *call.Record)
	}
	s.subs[calleeID][id] = ch
	return &memorySubscription{store: s, calleeID: calleeID, id: id, ch: ch}, nil
}

// pendingLocked returns the callee's still-INITIATED records, oldest
// first.
func (s *MemoryStore) pendingLocked(calleeID string) []*call.Record {
	var pending []*call.Record
	for _, rec := range s.records {
		if rec.CalleeID == calleeID && rec.Status == call.StatusInitiated {
			pending = append(pending, rec.Clone())
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})
	return pending
}

func (s *MemoryStore) notifyLocked(rec *call.Record) {
	for _, ch := range s.subs[rec.CalleeID] {
		select {
		case ch <- rec.Clone():
		default:
			// Subscriber not draining; it will resync via Get.
		}
	}
}

type memorySubscription struct {
	store    *MemoryStore
	calleeID string
	id       int
	ch       chan *call.Record
	once     sync.Once
}

func (m *memorySubscription) Records() <-chan *call.Record { return m.ch }

func (m *memorySubscription) Cancel() {
	m.once.Do(func() {
		m.store.mu.Lock()
		delete(m.store.subs[m.calleeID], m.id)
		m.store.mu.Unlock()
		close(m.ch)
	})
}
