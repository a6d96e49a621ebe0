package session

import "context"

// PermissionGate abstracts the platform permission layer. RequestAV asks
// for camera + microphone grants and returns
// carelink_errors.ErrPermissionDenied when either is refused.
type PermissionGate interface {
	RequestAV(ctx context.Context) error
}

// GrantAll is a gate that always grants, for deployments where the host
// has already secured device permissions.
type GrantAll struct{}

func (GrantAll) RequestAV(ctx context.Context) error { return nil }
