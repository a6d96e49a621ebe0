package media

import (
	"sync"
	"time"

	"carelink/internal/domain/call"
	carelink_errors "carelink/pkg/errors"
	"carelink/pkg/logger"
)

const eventBuffer = 32

// Manager owns the single live media engine instance in the process. All
// engine access goes through it; callers never hold a bare engine handle.
type Manager struct {
	mu           sync.Mutex
	factory      EngineFactory
	log          *logger.Logger
	engine       Engine
	events       chan Event
	session      *call.MediaSession
	initializing bool
}

func NewManager(factory EngineFactory, log *logger.Logger) *Manager {
	return &Manager{factory: factory, log: log}
}

// Initialize creates the engine instance. An existing instance is fully
// released first; the SDK forbids two instances alive at once.
func (m *Manager) Initialize(appID string) error {
	if appID == "" {
		return carelink_errors.ErrMissingCredentials
	}

	m.mu.Lock()
	if m.initializing {
		m.mu.Unlock()
		return carelink_errors.ErrEngineInitializing
	}
	m.initializing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.initializing = false
		m.mu.Unlock()
	}()

	// Tear down any previous instance before creating a new one.
	if err := m.Release(); err != nil {
		return err
	}

	events := make(chan Event, eventBuffer)
	engine, err := m.factory(appID, events)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engine = engine
	m.events = events
	m.mu.Unlock()
	if m.log != nil {
		m.log.Infof("media engine initialized")
	}
	return nil
}

// Events returns the engine event stream for the current instance, or nil
// when no instance is live. The channel closes on Release.
func (m *Manager) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Join enters the channel named by the credential. Joining while already
// in a different channel is an error, never an implicit leave; joining
// the same channel again is a no-op.
func (m *Manager) Join(cred *call.JoinCredential) error {
	if cred == nil || cred.ChannelName == "" {
		return carelink_errors.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return carelink_errors.ErrEngineNotReady
	}
	if m.session != nil {
		if m.session.ChannelName == cred.ChannelName {
			return nil
		}
		return carelink_errors.ErrAlreadyJoined
	}
	token := ""
	if cred.Token != nil {
		token = *cred.Token
	}
	if err := m.engine.JoinChannel(token, cred.ChannelName, cred.UID); err != nil {
		return err
	}
	m.session = &call.MediaSession{
		ChannelName:    cred.ChannelName,
		LocalUID:       cred.UID,
		VideoEnabled:   true,
		SpeakerEnabled: true,
		JoinedAt:       time.Now(),
	}
	return nil
}

// Session returns a copy of the live media session, or nil when not joined.
func (m *Manager) Session() *call.MediaSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// ObserveRemote records the remote party's uid from a peer-joined event.
func (m *Manager) ObserveRemote(uid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.RemoteUID = uid
	}
}

// SetAudioMuted toggles the local audio track. Failures are non-fatal and
// reported for UI feedback only.
func (m *Manager) SetAudioMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return carelink_errors.ErrEngineNotReady
	}
	if err := m.engine.MuteLocalAudio(muted); err != nil {
		return err
	}
	if m.session != nil {
		m.session.AudioMuted = muted
	}
	return nil
}

// SetVideoMuted toggles the local video track.
func (m *Manager) SetVideoMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return carelink_errors.ErrEngineNotReady
	}
	if err := m.engine.MuteLocalVideo(muted); err != nil {
		return err
	}
	if m.session != nil {
		m.session.VideoEnabled = !muted
	}
	return nil
}

func (m *Manager) SwitchCamera() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return carelink_errors.ErrEngineNotReady
	}
	return m.engine.SwitchCamera()
}

// BindLocalView attaches the local preview surface. Safe no-op when the
// engine is not initialized.
func (m *Manager) BindLocalView(view Surface) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return nil
	}
	return m.engine.SetupLocalVideo(view)
}

// BindRemoteView attaches the remote party's rendering surface.
func (m *Manager) BindRemoteView(view Surface, uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return nil
	}
	return m.engine.SetupRemoteVideo(view, uid)
}

// Leave stops the local preview and exits the channel. Safe to call when
// not joined.
func (m *Manager) Leave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked()
}

func (m *Manager) leaveLocked() error {
	if m.engine == nil || m.session == nil {
		return nil
	}
	if err := m.engine.StopPreview(); err != nil && m.log != nil {
		m.log.Warnf("stop preview: %v", err)
	}
	err := m.engine.LeaveChannel()
	m.session = nil
	return err
}

// Release leaves any joined channel and destroys the engine instance.
// Idempotent: repeated calls after the first are no-ops.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return nil
	}
	if err := m.leaveLocked(); err != nil && m.log != nil {
		m.log.Warnf("leave during release: %v", err)
	}
	err := m.engine.Destroy()
	m.engine = nil
	close(m.events)
	m.events = nil
	if m.log != nil {
		m.log.Infof("media engine released")
	}
	return err
}

// Live reports whether an engine instance currently exists.
func (m *Manager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine != nil
}
