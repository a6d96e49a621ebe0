package call

import (
	"math/rand"
	"time"
)

// MediaSession is the local, ephemeral view of a live engine join. It is
// owned exclusively by the media manager and never persisted.
type MediaSession struct {
	ChannelName    string
	LocalUID       uint32
	RemoteUID      uint32
	AudioMuted     bool
	VideoEnabled   bool
	SpeakerEnabled bool
	JoinedAt       time.Time
}

// JoinCredential is the short-lived proof of authorization to join a
// channel. A nil Token means unauthenticated fallback join.
type JoinCredential struct {
	Token       *string
	ChannelName string
	UID         uint32
	Expiry      time.Time
}

// NewLocalUID returns a random per-join uid. Uniqueness is only needed
// within one channel, so a random 31-bit value is sufficient.
func NewLocalUID() uint32 {
	return uint32(rand.Int31n(1<<31-2)) + 1
}
