package session

import (
	"context"
	"testing"
	"time"

	"carelink/internal/domain/call"
	"carelink/internal/media"
	"carelink/internal/signaling"
	"carelink/internal/store"
	carelink_errors "carelink/pkg/errors"
)

type stubTokens struct {
	healthy bool
	token   *string
	asked   int
}

func (s *stubTokens) CheckServiceHealth(ctx context.Context) bool { return s.healthy }

func (s *stubTokens) AcquireToken(ctx context.Context, channelName string, uid uint32, role string, ttlSeconds int) *string {
	s.asked++
	return s.token
}

type denyGate struct{}

func (denyGate) RequestAV(ctx context.Context) error { return carelink_errors.ErrPermissionDenied }

type rig struct {
	controller *Controller
	store      *store.MemoryStore
	signaling  *signaling.Service
	factory    *media.FakeFactory
	tokens     *stubTokens
}

func newRig(t *testing.T) *rig {
	t.Helper()
	tokenVal := "signed"
	r := &rig{
		store:  store.NewMemoryStore(),
		tokens: &stubTokens{healthy: true, token: &tokenVal},
	}
	r.signaling = signaling.NewService(r.store, nil, nil)
	r.factory = media.NewFakeFactory()
	r.controller = NewController(r.signaling, r.tokens, media.NewManager(r.factory.New, nil), nil, "app-id", "A", 600, nil)
	return r
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, stuck at %s", want, c.State())
}

func TestOutgoingCall_ConnectsThenEnds(t *testing.T) {
	r := newRig(t)
	rec, err := r.controller.StartOutgoing(context.Background(), "B", "Pat B")
	if err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	waitState(t, r.controller, StateConnected)

	got, _ := r.signaling.Fetch(context.Background(), rec.CallID)
	if got.Status != call.StatusInitiated {
		t.Fatalf("record should stay initiated until answered, got %s", got.Status)
	}

	if err := r.controller.End(context.Background()); err != nil {
		t.Fatalf("end: %v", err)
	}
	waitState(t, r.controller, StateIdle)

	got, _ = r.signaling.Fetch(context.Background(), rec.CallID)
	if got.Status != call.StatusEnded || got.EndedAt == nil {
		t.Fatalf("record not finalized: %+v", got)
	}

	eng := r.factory.Last()
	if !eng.Destroyed() {
		t.Fatalf("engine must be destroyed after end")
	}
	leaveIdx, destroyIdx := -1, -1
	for i, op := range eng.Ops {
		switch op {
		case "leave":
			leaveIdx = i
		case "destroy":
			destroyIdx = i
		}
	}
	if leaveIdx == -1 || destroyIdx == -1 || leaveIdx > destroyIdx {
		t.Fatalf("expected leave before destroy, ops: %v", eng.Ops)
	}
}

func TestEnd_IsIdempotent(t *testing.T) {
	r := newRig(t)
	_, err := r.controller.StartOutgoing(context.Background(), "B", "Pat B")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.controller.End(context.Background()); err != nil {
		t.Fatalf("first end: %v", err)
	}
	if err := r.controller.End(context.Background()); err != nil {
		t.Fatalf("second end must be a no-op: %v", err)
	}
	waitState(t, r.controller, StateIdle)
}

func TestOneActiveCallPerProcess(t *testing.T) {
	r := newRig(t)
	if _, err := r.controller.StartOutgoing(context.Background(), "B", "Pat B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.controller.StartOutgoing(context.Background(), "C", "Pat C"); err != carelink_errors.ErrCallActive {
		t.Fatalf("expected ErrCallActive, got %v", err)
	}
	_ = r.controller.End(context.Background())
}

func TestPermissionDenied_EndsFlowAndReleases(t *testing.T) {
	r := newRig(t)
	r.controller = NewController(r.signaling, r.tokens, media.NewManager(r.factory.New, nil), denyGate{}, "app-id", "A", 600, nil)

	_, err := r.controller.StartOutgoing(context.Background(), "B", "Pat B")
	if err != carelink_errors.ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	waitState(t, r.controller, StateIdle)
	if r.factory.Created() != 0 {
		t.Fatalf("engine must never be created without permissions")
	}
	// The dangling offer is cancelled so the callee prompt clears.
	rec := r.store.FindByCallee("B")
	if rec == nil {
		t.Fatalf("no proposed record for callee B")
	}
	got, _ := r.store.Get(context.Background(), rec.CallID)
	if got.Status != call.StatusEnded {
		t.Fatalf("offer should be cancelled, got %s", got.Status)
	}
}

func TestMissingAppCredentials_Fatal(t *testing.T) {
	r := newRig(t)
	r.controller = NewController(r.signaling, r.tokens, media.NewManager(r.factory.New, nil), nil, "", "A", 600, nil)

	_, err := r.controller.StartOutgoing(context.Background(), "B", "Pat B")
	if err != carelink_errors.ErrMissingCredentials {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	waitState(t, r.controller, StateIdle)
}

func TestUnhealthyTokenService_FallbackJoinStillConnects(t *testing.T) {
	r := newRig(t)
	r.tokens.healthy = false

	_, err := r.controller.StartOutgoing(context.Background(), "B", "Pat B")
	if err != nil {
		t.Fatalf("fallback join must not fail: %v", err)
	}
	waitState(t, r.controller, StateConnected)
	if r.tokens.asked != 0 {
		t.Fatalf("token must not be requested when the service is unhealthy")
	}
	_ = r.controller.End(context.Background())
}

func TestAccept_RaceLossDoesNotStartMedia(t *testing.T) {
	r := newRig(t)
	rec := call.NewRecord("caller", "A", "Pat A", time.Now())
	_ = r.store.Create(context.Background(), rec)
	if applied, _, _ := r.store.Transition(context.Background(), rec.CallID, call.StatusRejected); !applied {
		t.Fatalf("setup reject failed")
	}

	got, err := r.controller.Accept(context.Background(), rec.CallID)
	if err != nil {
		t.Fatalf("race loss must not be an error: %v", err)
	}
	if got.Status != call.StatusRejected {
		t.Fatalf("expected authoritative rejected state, got %s", got.Status)
	}
	if r.factory.Created() != 0 {
		t.Fatalf("no engine may be created on a lost accept")
	}
	waitState(t, r.controller, StateIdle)
}

func TestAccept_AnswersAndConnects(t *testing.T) {
	r := newRig(t)
	rec := call.NewRecord("caller", "A", "Pat A", time.Now())
	_ = r.store.Create(context.Background(), rec)

	got, err := r.controller.Accept(context.Background(), rec.CallID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != call.StatusAnswered || got.AnsweredAt == nil {
		t.Fatalf("record not answered: %+v", got)
	}
	waitState(t, r.controller, StateConnected)

	// Remote peer joins; the uid is learned from the engine event.
	r.factory.Last().PeerJoins(77)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if s := r.controller.media.Session(); s != nil && s.RemoteUID == 77 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("remote uid never observed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = r.controller.End(context.Background())
}

func TestRejectAndDismiss_NoMedia(t *testing.T) {
	r := newRig(t)
	rec := call.NewRecord("caller", "A", "Pat A", time.Now())
	_ = r.store.Create(context.Background(), rec)

	got, err := r.controller.Reject(context.Background(), rec.CallID)
	if err != nil || got.Status != call.StatusRejected {
		t.Fatalf("reject: %+v err=%v", got, err)
	}

	rec2 := call.NewRecord("caller", "A", "Pat A", time.Now())
	_ = r.store.Create(context.Background(), rec2)
	got, err = r.controller.DismissIncoming(context.Background(), rec2.CallID)
	if err != nil || got.Status != call.StatusMissed {
		t.Fatalf("dismiss: %+v err=%v", got, err)
	}
	if r.factory.Created() != 0 {
		t.Fatalf("reject/dismiss must not touch the engine")
	}
}

func TestUIEventsRelayed(t *testing.T) {
	r := newRig(t)
	if _, err := r.controller.StartOutgoing(context.Background(), "B", "Pat B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, r.controller, StateConnected)
	r.factory.Last().PeerJoins(9)
	r.factory.Last().PeerLeaves(9, "quit")

	seen := map[EventType]bool{}
	deadline := time.After(2 * time.Second)
	for !(seen[EventJoinSuccess] && seen[EventUserJoined] && seen[EventUserOffline]) {
		select {
		case ev := <-r.controller.Events():
			seen[ev.Type] = true
		case <-deadline:
			t.Fatalf("missing UI events, saw %v", seen)
		}
	}
	_ = r.controller.End(context.Background())
}

