package publish

import (
	"errors"
	"fmt"
)

// Phase names the protocol step an error came from.
type Phase string

const (
	PhaseCreateVersion Phase = "create_version"
	PhaseUpload        Phase = "upload"
)

// Kind categorizes what went wrong.
type Kind string

const (
	// KindCredential means no API token was configured. Raised before any
	// network I/O.
	KindCredential Kind = "credential"

	// KindNetwork means the request could not be sent or the response not
	// read.
	KindNetwork Kind = "network"

	// KindTimeout means the phase deadline expired.
	KindTimeout Kind = "timeout"

	// KindStatus means the service answered with a non-2xx status.
	KindStatus Kind = "status"

	// KindMalformed means a 2xx response body could not be used.
	KindMalformed Kind = "malformed"
)

// Error is a publish failure with the phase and kind that caused it.
type Error struct {
	Phase Phase
	Kind  Kind

	// StatusCode is the HTTP status for KindStatus, else 0.
	StatusCode int

	// Body is a prefix of the response body for KindStatus.
	Body string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("publish %s: %s", e.Phase, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Reason maps the failing phase to the job failure reason.
func (e *Error) Reason() Reason {
	if e.Phase == PhaseUpload {
		return ReasonUploadError
	}
	return ReasonCreateVersionError
}

// IsCredentialError reports whether err is a missing-credential failure.
// Uses errors.As to handle wrapped errors.
func IsCredentialError(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindCredential
	}
	return false
}

// IsTimeout reports whether err is a phase timeout.
func IsTimeout(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTimeout
	}
	return false
}

// ErrJobUsed is returned when a job that already left Idle is run again.
var ErrJobUsed = errors.New("publish job already run; start a new job to retry")
