package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Run failure (generation failed, ledger write failed, etc.)
	ExitCommandError = 2 // Command error (bad config, unknown deployment, etc.)
	ExitPartial      = 3 // Artifact generated and recorded, but publishing failed
)

// Response statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Error codes reported by commands alongside the pipeline's own run codes.
const (
	CodeRunFailed         = "RUN_FAILED"
	CodePublishFailed     = "PUBLISH_FAILED"
	CodeLedgerWriteFailed = "LEDGER_WRITE_FAILED"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that carry no
// code exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope for every command's output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes why a command failed or only partly succeeded.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter renders command results as text or JSON. Results go to
// Writer; verbose diagnostics go to ErrWriter so JSON stays parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// newFormatter builds the formatter for cmd from the global flags.
func newFormatter(cmd *cobra.Command, root *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    root.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   root.Verbose,
	}
}

// Success outputs a successful result. Text output prints data with %v, so
// views implementing fmt.Stringer control their own layout.
func (f *OutputFormatter) Success(data any) error {
	return f.respond(StatusOK, data, nil)
}

// Partial outputs a result that succeeded in part, with the error that
// stopped the rest.
func (f *OutputFormatter) Partial(data any, code, message string) error {
	return f.respond(StatusPartial, data, &CLIError{Code: code, Message: message})
}

// Error outputs a failure. Details appear in JSON always and in text only
// under --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.respond(StatusError, nil, &CLIError{Code: code, Message: message, Details: details})
}

func (f *OutputFormatter) respond(status string, data any, cliErr *CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: status, Data: data, Error: cliErr})
	}

	if data != nil {
		fmt.Fprintln(f.Writer, data)
	}
	switch status {
	case StatusPartial:
		fmt.Fprintf(f.Writer, "Warning [%s]: %s\n", cliErr.Code, cliErr.Message)
	case StatusError:
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		if f.Verbose && cliErr.Details != nil {
			fmt.Fprintf(f.Writer, "Details: %v\n", cliErr.Details)
		}
	}
	return nil
}

// VerboseLog writes a diagnostic line under --verbose. It prefers ErrWriter
// so JSON output on Writer is never interleaved with logs.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
