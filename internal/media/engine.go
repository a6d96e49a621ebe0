package media

// Surface is a rendering target supplied by the UI layer. The engine only
// needs to hold it, so it stays opaque here.
type Surface any

// ConnectionState mirrors the engine SDK's connection lifecycle.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnFailed       ConnectionState = "failed"
)

type EventType string

const (
	EventJoinSucceeded   EventType = "join_succeeded"
	EventPeerJoined      EventType = "peer_joined"
	EventPeerLeft        EventType = "peer_left"
	EventConnectionState EventType = "connection_state"
	EventLeftChannel     EventType = "left_channel"
)

// Event is the typed upward-facing engine notification. The manager owns
// the channel these arrive on; per-call subscribers drain it and stop at
// close, so no callback reference outlives a call.
type Event struct {
	Type      EventType
	Channel   string
	UID       uint32
	State     ConnectionState
	Reason    string
	ElapsedMs int
}

// Engine is the process-facing surface of the real-time media SDK. The
// SDK forbids concurrent instances; Manager enforces that, not Engine.
type Engine interface {
	JoinChannel(token, channel string, uid uint32) error
	LeaveChannel() error
	MuteLocalAudio(muted bool) error
	MuteLocalVideo(muted bool) error
	SwitchCamera() error
	SetupLocalVideo(view Surface) error
	SetupRemoteVideo(view Surface, uid uint32) error
	StopPreview() error
	Destroy() error
}

// EngineFactory creates a fresh engine instance bound to an event sink.
// Factories surface missing credentials and denied device permissions as
// errors; they never return a half-created engine.
type EngineFactory func(appID string, events chan<- Event) (Engine, error)
