package call

import (
	"time"

	"github.com/google/uuid"
)

// Status is the call state persisted in the shared record store.
// Stored as the lowercase state name.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusAnswered  Status = "answered"
	StatusEnded     Status = "ended"
	StatusRejected  Status = "rejected"
	StatusMissed    Status = "missed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusMissed:
		return true
	}
	return false
}

// Valid reports whether s is one of the five known states.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusAnswered, StatusEnded, StatusRejected, StatusMissed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows s -> to.
// INITIATED -> ANSWERED | REJECTED | MISSED | ENDED (caller cancel)
// ANSWERED  -> ENDED
// Terminal states admit nothing.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusInitiated:
		return to == StatusAnswered || to == StatusRejected || to == StatusMissed || to == StatusEnded
	case StatusAnswered:
		return to == StatusEnded
	}
	return false
}

// Record is the shared, authoritative description of one call. The callId
// doubles as the media channel name.
type Record struct {
	CallID       string     `json:"callId"`
	CallerID     string     `json:"callerId"`
	CalleeID     string     `json:"calleeId"`
	PatientName  string     `json:"patientName"`
	Status       Status     `json:"status"`
	Timestamp    time.Time  `json:"timestamp"`
	AnsweredAt   *time.Time `json:"answeredAt,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	RejectedAt   *time.Time `json:"rejectedAt,omitempty"`
	Participants []string   `json:"participants"`
}

// NewRecord builds an INITIATED record with a fresh callId.
func NewRecord(callerID, calleeID, patientName string, now time.Time) *Record {
	return &Record{
		CallID:       uuid.New().String(),
		CallerID:     callerID,
		CalleeID:     calleeID,
		PatientName:  patientName,
		Status:       StatusInitiated,
		Timestamp:    now,
		Participants: []string{callerID, calleeID},
	}
}

// Stamp sets the timestamp field matching a just-applied transition.
// Each field is written exactly once, on its own transition.
func (r *Record) Stamp(to Status, at time.Time) {
	t := at
	switch to {
	case StatusAnswered:
		if r.AnsweredAt == nil {
			r.AnsweredAt = &t
		}
	case StatusEnded:
		if r.EndedAt == nil {
			r.EndedAt = &t
		}
	case StatusRejected:
		if r.RejectedAt == nil {
			r.RejectedAt = &t
		}
	}
}

// Clone returns a deep copy so store subscribers never share mutable state.
func (r *Record) Clone() *Record {
	cp := *r
	if r.AnsweredAt != nil {
		t := *r.AnsweredAt
		cp.AnsweredAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		cp.EndedAt = &t
	}
	if r.RejectedAt != nil {
		t := *r.RejectedAt
		cp.RejectedAt = &t
	}
	cp.Participants = append([]string(nil), r.Participants...)
	return &cp
}
