package media

import (
	"sync"

	carelink_errors "carelink/pkg/errors"
)

// FakeEngine is the in-process engine double used by tests and local
// development. It emits the same event sequence the real SDK driver does
// and records every operation for order assertions.
type FakeEngine struct {
	mu        sync.Mutex
	events    chan<- Event
	appID     string
	channel   string
	uid       uint32
	joined    bool
	destroyed bool

	Ops []string

	// Failure injection
	JoinErr   error
	MuteErr   error
	CameraErr error
}

// FakeFactory builds FakeEngines and keeps a handle on the last one so
// tests can drive peers and inspect recorded operations.
type FakeFactory struct {
	mu        sync.Mutex
	last      *FakeEngine
	created   int
	CreateErr error
}

func NewFakeFactory() *FakeFactory { return &FakeFactory{} }

func (f *FakeFactory) New(appID string, events chan<- Event) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.created++
	f.last = &FakeEngine{events: events, appID: appID}
	return f.last, nil
}

func (f *FakeFactory) Last() *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (e *FakeEngine) record(op string) {
	e.Ops = append(e.Ops, op)
}

func (e *FakeEngine) emit(ev Event) {
	if e.destroyed {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}

func (e *FakeEngine) JoinChannel(token, channel string, uid uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("join:" + channel)
	if e.JoinErr != nil {
		return e.JoinErr
	}
	if e.joined {
		return carelink_errors.ErrAlreadyJoined
	}
	e.joined = true
	e.channel = channel
	e.uid = uid
	e.emit(Event{Type: EventJoinSucceeded, Channel: channel, UID: uid, ElapsedMs: 42})
	e.emit(Event{Type: EventConnectionState, State: ConnConnected, Channel: channel})
	return nil
}

func (e *FakeEngine) LeaveChannel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("leave")
	if !e.joined {
		return nil
	}
	e.joined = false
	e.emit(Event{Type: EventLeftChannel, Channel: e.channel})
	e.channel = ""
	return nil
}

func (e *FakeEngine) MuteLocalAudio(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if muted {
		e.record("mute_audio")
	} else {
		e.record("unmute_audio")
	}
	return e.MuteErr
}

func (e *FakeEngine) MuteLocalVideo(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if muted {
		e.record("mute_video")
	} else {
		e.record("unmute_video")
	}
	return e.MuteErr
}

func (e *FakeEngine) SwitchCamera() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("switch_camera")
	return e.CameraErr
}

func (e *FakeEngine) SetupLocalVideo(view Surface) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("bind_local")
	return nil
}

func (e *FakeEngine) SetupRemoteVideo(view Surface, uid uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("bind_remote")
	return nil
}

func (e *FakeEngine) StopPreview() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop_preview")
	return nil
}

func (e *FakeEngine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("destroy")
	e.destroyed = true
	return nil
}

// PeerJoins simulates the remote party entering the channel.
func (e *FakeEngine) PeerJoins(uid uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(Event{Type: EventPeerJoined, Channel: e.channel, UID: uid})
}

// PeerLeaves simulates the remote party leaving.
func (e *FakeEngine) PeerLeaves(uid uint32, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(Event{Type: EventPeerLeft, Channel: e.channel, UID: uid, Reason: reason})
}

// Destroyed reports whether Destroy has been called.
func (e *FakeEngine) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}
