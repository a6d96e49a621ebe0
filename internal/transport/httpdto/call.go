package httpdto

import "carelink/internal/domain/call"

// ProposeCallRequest is used for POST /calls
type ProposeCallRequest struct {
	CalleeID    string `json:"calleeId" binding:"required"`
	PatientName string `json:"patientName,omitempty"`
}

// TransitionResponse reports a conditional transition. Applied false
// means the transition lost a race; Record is authoritative either way.
type TransitionResponse struct {
	Applied bool         `json:"applied"`
	Record  *call.Record `json:"record"`
}
