package submission

import (
	"errors"
	"fmt"
)

// Reason classifies why a submission did not succeed
type Reason string

const (
	// ReasonTransport covers dial failures, timeouts and unreadable bodies
	ReasonTransport Reason = "transport"
	// ReasonServerRejected means a well-formed reply without success=true
	ReasonServerRejected Reason = "server_rejected"
	// ReasonMalformedResponse means the reply was not a JSON object
	ReasonMalformedResponse Reason = "malformed_response"
)

// Error is returned by Client.Submit for every failed submission
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("submission failed: %s", e.Reason)
	}
	return fmt.Sprintf("submission failed: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the reason carried by err, or an empty string if err is
// not a submission error
func ReasonOf(err error) Reason {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}
