package session

import (
	"context"
	"sync"
	"time"

	"carelink/internal/domain/call"
	"carelink/internal/media"
	"carelink/internal/signaling"
	"carelink/internal/store"
	carelink_errors "carelink/pkg/errors"
	"carelink/pkg/logger"
)

// State is the client-side orchestration state machine.
type State string

const (
	StateIdle                 State = "idle"
	StateAcquiringPermissions State = "acquiring_permissions"
	StateInitializing         State = "initializing"
	StateJoining              State = "joining"
	StateConnected            State = "connected"
	StateEnding               State = "ending"
)

// EventType enumerates the callbacks the UI layer receives.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventJoinSuccess     EventType = "join_success"
	EventUserJoined      EventType = "user_joined"
	EventUserOffline     EventType = "user_offline"
	EventConnectionState EventType = "connection_state"
	EventLeave           EventType = "leave"
	EventDurationTick    EventType = "duration_tick"
	EventFailure         EventType = "failure"
)

// Event is pushed to the UI layer. Exactly one controller per process may
// hold a live call, so the stream needs no call correlation id.
type Event struct {
	Type      EventType
	State     State
	UID       uint32
	ConnState media.ConnectionState
	Reason    string
	Duration  time.Duration
}

const (
	uiEventBuffer = 32
	tokenRole     = "publisher"
)

// TokenSource is the token acquisition contract (satisfied by
// token.Client). Health is probed first; an unhealthy service means the
// join proceeds in unauthenticated fallback mode.
type TokenSource interface {
	CheckServiceHealth(ctx context.Context) bool
	AcquireToken(ctx context.Context, channelName string, uid uint32, role string, ttlSeconds int) *string
}

// Controller orchestrates one call at a time: it drives the signaling
// protocol, gates on permissions, feeds credentials to the media manager,
// and guarantees Leave/Release on every exit path. It is the only
// component allowed to call Release on the media manager.
type Controller struct {
	signaling *signaling.Service
	tokens    TokenSource
	media     *media.Manager
	perms     PermissionGate
	log       *logger.Logger
	appID     string
	userID    string
	tokenTTL  int

	mu        sync.Mutex
	state     State
	record    *call.Record
	events    chan Event
	stop      chan struct{}
	stopOnce  *sync.Once
	startedAt time.Time
	wg        sync.WaitGroup
}

func NewController(sig *signaling.Service, tokens TokenSource, mediaMgr *media.Manager, perms PermissionGate, appID, userID string, tokenTTLSeconds int, log *logger.Logger) *Controller {
	if perms == nil {
		perms = GrantAll{}
	}
	if tokenTTLSeconds <= 0 {
		tokenTTLSeconds = 3600
	}
	return &Controller{
		signaling: sig,
		tokens:    tokens,
		media:     mediaMgr,
		perms:     perms,
		log:       log,
		appID:     appID,
		userID:    userID,
		tokenTTL:  tokenTTLSeconds,
		state:     StateIdle,
		events:    make(chan Event, uiEventBuffer),
	}
}

// Events is the stream of UI callbacks for the controller's lifetime.
func (c *Controller) Events() <-chan Event { return c.events }

// State returns the current orchestration state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentCall returns the record of the active call, or nil.
func (c *Controller) CurrentCall() *call.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return nil
	}
	return c.record.Clone()
}

// StartOutgoing proposes a call to the callee and brings up media. On any
// setup failure the proposed record is ended and the engine released.
func (c *Controller) StartOutgoing(ctx context.Context, calleeID, patientName string) (*call.Record, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	rec, err := c.signaling.Propose(ctx, c.userID, calleeID, patientName)
	if err != nil {
		c.reset()
		return nil, err
	}
	c.setRecord(rec)
	if err := c.connect(ctx, rec); err != nil {
		// Cancel the offer so the callee's prompt does not dangle.
		_, _ = c.signaling.End(ctx, rec.CallID)
		return nil, err
	}
	return rec, nil
}

// Accept answers an incoming call and brings up media. A race loss (the
// record already terminal) is not an error: the authoritative record is
// returned and no media session starts.
func (c *Controller) Accept(ctx context.Context, callID string) (*call.Record, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	out, err := c.signaling.Answer(ctx, callID)
	if err != nil {
		c.reset()
		return nil, err
	}
	if !out.Applied {
		c.reset()
		return out.Record, nil
	}
	c.setRecord(out.Record)
	if err := c.connect(ctx, out.Record); err != nil {
		_, _ = c.signaling.End(ctx, callID)
		return nil, err
	}
	return out.Record, nil
}

// Reject declines an incoming call. No media is involved.
func (c *Controller) Reject(ctx context.Context, callID string) (*call.Record, error) {
	out, err := c.signaling.Reject(ctx, callID)
	if err != nil {
		return nil, err
	}
	return out.Record, nil
}

// DismissIncoming marks an ignored incoming call as missed. Called by the
// callee's client when it stops showing the prompt.
func (c *Controller) DismissIncoming(ctx context.Context, callID string) (*call.Record, error) {
	out, err := c.signaling.MarkMissed(ctx, callID)
	if err != nil {
		return nil, err
	}
	return out.Record, nil
}

// IncomingCalls subscribes to incoming-call offers for this user. Cancel
// the subscription when the observing screen goes away.
func (c *Controller) IncomingCalls(ctx context.Context) (store.Subscription, error) {
	return c.signaling.SubscribeIncoming(ctx, c.userID)
}

// End finalizes the shared record, then tears the media session down:
// end(store) -> LeaveChannel -> Release -> Idle, in that order.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	rec := c.record
	c.mu.Unlock()

	c.setState(StateEnding)
	if rec != nil {
		// A race loss here just means the other side finalized first.
		if _, err := c.signaling.End(ctx, rec.CallID); err != nil && c.log != nil {
			c.log.Errorf("end call %s: %v", rec.CallID, err)
		}
	}
	c.teardown()
	return nil
}

// Close tears down without touching the shared record; used on process
// teardown or back-navigation where the record was already finalized.
func (c *Controller) Close() {
	c.mu.Lock()
	idle := c.state == StateIdle
	c.mu.Unlock()
	if idle {
		return
	}
	c.setState(StateEnding)
	c.teardown()
}

// Mute toggles the local audio track; failures are UI feedback only.
func (c *Controller) Mute(muted bool) error { return c.media.SetAudioMuted(muted) }

// ToggleVideo toggles the local video track.
func (c *Controller) ToggleVideo(enabled bool) error { return c.media.SetVideoMuted(!enabled) }

func (c *Controller) SwitchCamera() error { return c.media.SwitchCamera() }

func (c *Controller) BindLocalView(view media.Surface) error { return c.media.BindLocalView(view) }

func (c *Controller) BindRemoteView(view media.Surface, uid uint32) error {
	return c.media.BindRemoteView(view, uid)
}

// begin claims the controller for a new call. One call per process.
func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return carelink_errors.ErrCallActive
	}
	c.state = StateAcquiringPermissions
	c.stop = make(chan struct{})
	c.stopOnce = &sync.Once{}
	return nil
}

func (c *Controller) setRecord(rec *call.Record) {
	c.mu.Lock()
	c.record = rec
	c.mu.Unlock()
}

// connect walks AcquiringPermissions -> Initializing -> Joining and
// starts the event pumps. Any failure forces Ending -> Idle with Release
// guaranteed.
func (c *Controller) connect(ctx context.Context, rec *call.Record) error {
	c.emitState(StateAcquiringPermissions)
	if err := c.perms.RequestAV(ctx); err != nil {
		c.fail("permission denied")
		return err
	}

	c.setState(StateInitializing)
	if err := c.media.Initialize(c.appID); err != nil {
		c.fail("engine initialization failed")
		return err
	}

	uid := call.NewLocalUID()
	var tok *string
	if c.tokens != nil && c.tokens.CheckServiceHealth(ctx) {
		tok = c.tokens.AcquireToken(ctx, rec.CallID, uid, tokenRole, c.tokenTTL)
	} else if c.log != nil {
		// Unauthenticated fallback: accepted trade-off outside hardened
		// deployments.
		c.log.Warnf("token service unhealthy, joining %s without a token", rec.CallID)
	}
	cred := &call.JoinCredential{
		Token:       tok,
		ChannelName: rec.CallID,
		UID:         uid,
		Expiry:      time.Now().Add(time.Duration(c.tokenTTL) * time.Second),
	}

	c.setState(StateJoining)
	if err := c.media.Join(cred); err != nil {
		c.fail("channel join failed")
		return err
	}

	engineEvents := c.media.Events()
	c.mu.Lock()
	c.startedAt = time.Now()
	stop := c.stop
	c.mu.Unlock()

	c.wg.Add(2)
	go c.pumpEngine(engineEvents, stop)
	go c.tickDuration(stop)
	return nil
}

// pumpEngine relays engine events to the UI stream and advances the call
// state. It exits when the manager closes the engine channel on Release.
func (c *Controller) pumpEngine(events <-chan media.Event, stop chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEngineEvent(ev)
		case <-stop:
			return
		}
	}
}

func (c *Controller) handleEngineEvent(ev media.Event) {
	switch ev.Type {
	case media.EventJoinSucceeded:
		c.setState(StateConnected)
		c.emit(Event{Type: EventJoinSuccess, UID: ev.UID, Duration: time.Duration(ev.ElapsedMs) * time.Millisecond})
	case media.EventPeerJoined:
		c.media.ObserveRemote(ev.UID)
		c.emit(Event{Type: EventUserJoined, UID: ev.UID})
	case media.EventPeerLeft:
		c.emit(Event{Type: EventUserOffline, UID: ev.UID, Reason: ev.Reason})
	case media.EventConnectionState:
		c.emit(Event{Type: EventConnectionState, ConnState: ev.State, Reason: ev.Reason})
	case media.EventLeftChannel:
		c.emit(Event{Type: EventLeave})
	}
}

// tickDuration emits the 1 Hz call-duration tick until teardown.
func (c *Controller) tickDuration(stop chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			since := time.Since(c.startedAt)
			c.mu.Unlock()
			c.emit(Event{Type: EventDurationTick, Duration: since})
		case <-stop:
			return
		}
	}
}

// fail reports a terminal setup failure and forces Ending -> Idle.
func (c *Controller) fail(reason string) {
	c.setState(StateEnding)
	c.emit(Event{Type: EventFailure, Reason: reason})
	c.teardown()
}

// teardown is the single exit path: stop timers, leave the channel,
// release the engine, return to Idle. Idempotent per call.
func (c *Controller) teardown() {
	c.mu.Lock()
	stopOnce := c.stopOnce
	stop := c.stop
	c.mu.Unlock()
	if stopOnce != nil {
		stopOnce.Do(func() {
			if stop != nil {
				close(stop)
			}
		})
	}
	if err := c.media.Leave(); err != nil && c.log != nil {
		c.log.Errorf("leave channel: %v", err)
	}
	if err := c.media.Release(); err != nil && c.log != nil {
		c.log.Errorf("release engine: %v", err)
	}
	c.wg.Wait()
	c.reset()
}

func (c *Controller) reset() {
	c.mu.Lock()
	c.record = nil
	c.stop = nil
	c.stopOnce = nil
	c.mu.Unlock()
	c.setState(StateIdle)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.emit(Event{Type: EventStateChanged, State: s})
}

func (c *Controller) emitState(s State) {
	c.emit(Event{Type: EventStateChanged, State: s})
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// UI not draining; state remains queryable via State().
	}
}
