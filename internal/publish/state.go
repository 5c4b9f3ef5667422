package publish

import (
	"fmt"
	"time"
)

// State is a publish job's protocol state.
type State string

const (
	StateIdle                 State = "idle"
	StateConfigVersionCreated State = "config_version_created"
	StateArchiveUploaded      State = "archive_uploaded"
	StateVerified             State = "verified"
	StateFailed               State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

// Reason says which phase a failed job died in.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonCreateVersionError Reason = "create_version_error"
	ReasonUploadError        Reason = "upload_error"
)

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateConfigVersionCreated || to == StateFailed
	case StateConfigVersionCreated:
		return to == StateArchiveUploaded || to == StateFailed
	case StateArchiveUploaded:
		return to == StateVerified || to == StateFailed
	default:
		return false
	}
}

func checkTransition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed publish transition: %s -> %s", from, to)
	}
	return nil
}
