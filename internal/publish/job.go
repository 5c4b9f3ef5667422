package publish

import (
	"sync"
	"time"

	"github.com/roach88/promptinfra/internal/ir"
)

// Job is one attempt to publish one artifact to one workspace. Jobs share
// no mutable state; each is driven by a single Publisher.Run call.
type Job struct {
	Workspace string
	Artifact  ir.Artifact

	mu              sync.Mutex
	state           State
	reason          Reason
	err             *Error
	configVersionID string
	uploadURL       string
	history         []Transition
}

// NewJob creates an Idle job.
func NewJob(workspace string, artifact ir.Artifact) *Job {
	return &Job{Workspace: workspace, Artifact: artifact, state: StateIdle}
}

// State returns the current protocol state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Reason returns why the job failed, or ReasonNone.
func (j *Job) Reason() Reason {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reason
}

// Err returns the failure, or nil.
func (j *Job) Err() *Error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// ConfigVersionID returns the id of the configuration version created in
// phase 1, when the service reported one.
func (j *Job) ConfigVersionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.configVersionID
}

// UploadURL returns the one-time upload URL obtained in phase 1.
func (j *Job) UploadURL() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.uploadURL
}

// History returns the transitions taken so far.
func (j *Job) History() []Transition {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Transition, len(j.history))
	copy(out, j.history)
	return out
}

// advance moves the job to to, validating the transition.
func (j *Job) advance(to State, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := checkTransition(j.state, to); err != nil {
		return err
	}
	j.history = append(j.history, Transition{From: j.state, To: to, At: at})
	j.state = to
	return nil
}

// fail moves the job to Failed with the reason implied by perr.
func (j *Job) fail(perr *Error, at time.Time) error {
	if err := j.advance(StateFailed, at); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reason = perr.Reason()
	j.err = perr
	return nil
}

// begin claims an Idle job for a run.
func (j *Job) begin() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateIdle || len(j.history) > 0 {
		return ErrJobUsed
	}
	return nil
}

func (j *Job) setVersion(id, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.configVersionID = id
	j.uploadURL = url
}
