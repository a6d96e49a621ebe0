package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"carelink/internal/domain/call"
	carelink_errors "carelink/pkg/errors"
)

func TestMemoryStore_CreateThenGet(t *testing.T) {
	s := NewMemoryStore()
	rec := call.NewRecord("A", "B", "Pat B", time.Now())
	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(context.Background(), rec.CallID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != call.StatusInitiated || got.CallerID != "A" || got.CalleeID != "B" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); err != carelink_errors.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Transition(context.Background(), "nope", call.StatusAnswered); err != carelink_errors.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_TransitionStampsStoreTime(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Unix(5000, 0).UTC()
	s.SetClock(func() time.Time { return fixed })
	rec := call.NewRecord("A", "B", "Pat B", time.Now())
	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	applied, got, err := s.Transition(context.Background(), rec.CallID, call.StatusAnswered)
	if err != nil || !applied {
		t.Fatalf("expected applied transition, got applied=%v err=%v", applied, err)
	}
	if got.AnsweredAt == nil || !got.AnsweredAt.Equal(fixed) {
		t.Fatalf("expected store-assigned answeredAt %v, got %v", fixed, got.AnsweredAt)
	}
}

func TestMemoryStore_TerminalIsImmutable(t *testing.T) {
	s := NewMemoryStore()
	rec := call.NewRecord("A", "B", "Pat B", time.Now())
	_ = s.Create(context.Background(), rec)
	if applied, _, _ := s.Transition(context.Background(), rec.CallID, call.StatusRejected); !applied {
		t.Fatalf("expected reject to apply")
	}
	for _, to := range []call.Status{call.StatusAnswered, call.StatusEnded, call.StatusMissed} {
		applied, got, err := s.Transition(context.Background(), rec.CallID, to)
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if applied {
			t.Fatalf("terminal record mutated by %s", to)
		}
		if got.Status != call.StatusRejected {
			t.Fatalf("authoritative state changed: %s", got.Status)
		}
		if got.AnsweredAt != nil || got.EndedAt != nil {
			t.Fatalf("extra stamps set after terminal state")
		}
	}
}

func TestMemoryStore_ConcurrentAnswerRejectExactlyOneWins(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := NewMemoryStore()
		rec := call.NewRecord("A", "B", "Pat B", time.Now())
		_ = s.Create(context.Background(), rec)

		var wg sync.WaitGroup
		results := make([]bool, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0], _, _ = s.Transition(context.Background(), rec.CallID, call.StatusAnswered)
		}()
		go func() {
			defer wg.Done()
			results[1], _, _ = s.Transition(context.Background(), rec.CallID, call.StatusRejected)
		}()
		wg.Wait()

		if results[0] == results[1] {
			t.Fatalf("expected exactly one winner, got answer=%v reject=%v", results[0], results[1])
		}
		got, _ := s.Get(context.Background(), rec.CallID)
		if results[0] && got.Status != call.StatusAnswered {
			t.Fatalf("answer won but state is %s", got.Status)
		}
		if results[1] && got.Status != call.StatusRejected {
			t.Fatalf("reject won but state is %s", got.Status)
		}
	}
}

func TestMemoryStore_SubscribeIncoming(t *testing.T) {
	s := NewMemoryStore()
	sub, err := s.SubscribeIncoming(context.Background(), "B")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	other, _ := s.SubscribeIncoming(context.Background(), "C")
	defer other.Cancel()

	rec := call.NewRecord("A", "B", "Pat B", time.Now())
	_ = s.Create(context.Background(), rec)

	select {
	case got := <-sub.Records():
		if got.CallID != rec.CallID || got.Status != call.StatusInitiated {
			t.Fatalf("unexpected incoming record: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no incoming notification")
	}
	select {
	case got := <-other.Records():
		t.Fatalf("subscriber for other callee notified: %+v", got)
	default:
	}

	sub.Cancel()
	if _, ok := <-sub.Records(); ok {
		t.Fatalf("expected closed channel after cancel")
	}
	// Cancel is idempotent.
	sub.Cancel()
}

func TestMemoryStore_SubscribeIncomingReplaysPendingOffers(t *testing.T) {
	s := NewMemoryStore()
	pending := call.NewRecord("A", "B", "Pat B", time.Now())
	if err := s.Create(context.Background(), pending); err != nil {
		t.Fatalf("create: %v", err)
	}
	taken := call.NewRecord("A", "B", "Pat B", time.Now())
	_ = s.Create(context.Background(), taken)
	if applied, _, _ := s.Transition(context.Background(), taken.CallID, call.StatusAnswered); !applied {
		t.Fatalf("setup answer failed")
	}

	// Subscribing after the propose must still surface the open offer.
	sub, err := s.SubscribeIncoming(context.Background(), "B")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	select {
	case got := <-sub.Records():
		if got.CallID != pending.CallID || got.Status != call.StatusInitiated {
			t.Fatalf("unexpected replayed record: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("pending offer never delivered to a late subscriber")
	}
	select {
	case got := <-sub.Records():
		t.Fatalf("non-pending call replayed: %+v", got)
	default:
	}
	sub.Cancel()

	// A reconnecting subscriber sees the still-open offer again.
	resub, err := s.SubscribeIncoming(context.Background(), "B")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	defer resub.Cancel()
	select {
	case got := <-resub.Records():
		if got.CallID != pending.CallID {
			t.Fatalf("unexpected record after resubscribe: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("pending offer lost across resubscribe")
	}
}
