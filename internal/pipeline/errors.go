package pipeline

import (
	"errors"
	"fmt"
)

// RunErrorCode categorizes run failures.
type RunErrorCode string

const (
	// ErrCodeGenerationFailed means no gateway produced usable text. Nothing
	// was cached or recorded.
	ErrCodeGenerationFailed RunErrorCode = "GENERATION_FAILED"

	// ErrCodeCacheReadFailed means the local cache tier could not be read.
	ErrCodeCacheReadFailed RunErrorCode = "CACHE_READ_FAILED"

	// ErrCodeCacheWriteFailed means the local cache tier could not be
	// written. The artifact is still returned.
	ErrCodeCacheWriteFailed RunErrorCode = "CACHE_WRITE_FAILED"

	// ErrCodeLedgerWriteFailed means the deployment record could not be
	// stored. The artifact is still returned.
	ErrCodeLedgerWriteFailed RunErrorCode = "LEDGER_WRITE_FAILED"
)

// Run phases named by RunError.
const (
	PhaseCacheGet     = "cache_get"
	PhaseGenerate     = "generate"
	PhaseCachePut     = "cache_put"
	PhaseLedgerRecord = "ledger_record"
	PhaseLedgerUpdate = "ledger_update"
)

// RunError is a run-level failure. It always names the phase that failed.
type RunError struct {
	Code  RunErrorCode
	Phase string

	// DeploymentID identifies the run.
	DeploymentID string

	Err error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.DeploymentID != "" {
		return fmt.Sprintf("%s in %s (deployment=%s): %v", e.Code, e.Phase, e.DeploymentID, e.Err)
	}
	return fmt.Sprintf("%s in %s: %v", e.Code, e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func runErrorCode(err error) (RunErrorCode, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsGenerationFailed reports whether err is a generation failure.
// Uses errors.As to handle wrapped errors.
func IsGenerationFailed(err error) bool {
	code, ok := runErrorCode(err)
	return ok && code == ErrCodeGenerationFailed
}

// IsCacheWriteFailed reports whether err is a local cache write failure.
func IsCacheWriteFailed(err error) bool {
	code, ok := runErrorCode(err)
	return ok && code == ErrCodeCacheWriteFailed
}

// IsLedgerWriteFailed reports whether err is a ledger write failure.
func IsLedgerWriteFailed(err error) bool {
	code, ok := runErrorCode(err)
	return ok && code == ErrCodeLedgerWriteFailed
}
