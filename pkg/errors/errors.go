package carelink_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrEngineInitializing = errors.New("engine initialization in progress")
	ErrEngineNotReady     = errors.New("engine not initialized")
	ErrAlreadyJoined      = errors.New("already joined a channel")
	ErrMissingCredentials = errors.New("missing app credentials")
	ErrPermissionDenied   = errors.New("camera or microphone permission denied")
	ErrCallActive         = errors.New("another call is already active")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
