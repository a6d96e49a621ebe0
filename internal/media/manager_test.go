package media

import (
	"testing"
	"time"

	"carelink/internal/domain/call"
	carelink_errors "carelink/pkg/errors"
)

func newTestManager(t *testing.T) (*Manager, *FakeFactory) {
	t.Helper()
	f := NewFakeFactory()
	return NewManager(f.New, nil), f
}

func cred(channel string) *call.JoinCredential {
	return &call.JoinCredential{ChannelName: channel, UID: call.NewLocalUID(), Expiry: time.Now().Add(time.Hour)}
}

func waitEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestInitialize_RequiresAppCredentials(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Initialize(""); err != carelink_errors.ErrMissingCredentials {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if m.Live() {
		t.Fatalf("no engine must exist after failed initialize")
	}
}

func TestInitialize_ReleasesExistingInstance(t *testing.T) {
	m, f := newTestManager(t)
	if err := m.Initialize("app-id"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	first := f.Last()
	if err := m.Initialize("app-id"); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	if !first.Destroyed() {
		t.Fatalf("previous instance must be destroyed before the new one")
	}
	if f.Created() != 2 {
		t.Fatalf("expected 2 created engines, got %d", f.Created())
	}
	if !m.Live() {
		t.Fatalf("exactly one live instance expected after re-initialize")
	}
}

func TestJoin_WithoutInitialize(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Join(cred("chan-1")); err != carelink_errors.ErrEngineNotReady {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestJoin_NilTokenFallbackStillSucceeds(t *testing.T) {
	m, _ := newTestManager(t)
	_ = m.Initialize("app-id")
	c := cred("chan-1")
	c.Token = nil // unauthenticated fallback
	if err := m.Join(c); err != nil {
		t.Fatalf("fallback join: %v", err)
	}
	ev := waitEvent(t, m.Events(), EventJoinSucceeded)
	if ev.Channel != "chan-1" || ev.UID != c.UID {
		t.Fatalf("unexpected join event: %+v", ev)
	}
}

func TestJoin_SameChannelIdempotent_DifferentChannelErrors(t *testing.T) {
	m, _ := newTestManager(t)
	_ = m.Initialize("app-id")
	if err := m.Join(cred("chan-1")); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.Join(cred("chan-1")); err != nil {
		t.Fatalf("re-join of same channel must be a no-op: %v", err)
	}
	if err := m.Join(cred("chan-2")); err != carelink_errors.ErrAlreadyJoined {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestMuteTogglesSessionFlags(t *testing.T) {
	m, _ := newTestManager(t)
	_ = m.Initialize("app-id")
	_ = m.Join(cred("chan-1"))

	if err := m.SetAudioMuted(true); err != nil {
		t.Fatalf("mute audio: %v", err)
	}
	if err := m.SetVideoMuted(true); err != nil {
		t.Fatalf("mute video: %v", err)
	}
	s := m.Session()
	if !s.AudioMuted || s.VideoEnabled {
		t.Fatalf("session flags not updated: %+v", s)
	}
	if err := m.SetVideoMuted(false); err != nil {
		t.Fatalf("unmute video: %v", err)
	}
	if s := m.Session(); !s.VideoEnabled {
		t.Fatalf("video should be enabled again")
	}
}

func TestBindViews_SafeWithoutEngine(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.BindLocalView("surface"); err != nil {
		t.Fatalf("bind local without engine must be a no-op: %v", err)
	}
	if err := m.BindRemoteView("surface", 7); err != nil {
		t.Fatalf("bind remote without engine must be a no-op: %v", err)
	}
}

func TestLeave_SafeWhenNotJoined(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Leave(); err != nil {
		t.Fatalf("leave without engine: %v", err)
	}
	_ = m.Initialize("app-id")
	if err := m.Leave(); err != nil {
		t.Fatalf("leave without join: %v", err)
	}
}

func TestRelease_IdempotentAndLeavesFirst(t *testing.T) {
	m, f := newTestManager(t)
	_ = m.Initialize("app-id")
	_ = m.Join(cred("chan-1"))
	eng := f.Last()

	if err := m.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("second release must not error: %v", err)
	}
	if m.Live() {
		t.Fatalf("engine alive after release")
	}

	// leave must precede destroy
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

func TestObserveRemote(t *testing.T) {
	m, _ := newTestManager(t)
	_ = m.Initialize("app-id")
	_ = m.Join(cred("chan-1"))
	m.ObserveRemote(99)
	if s := m.Session(); s.RemoteUID != 99 {
		t.Fatalf("remote uid not recorded: %+v", s)
	}
}
