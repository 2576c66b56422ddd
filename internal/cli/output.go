package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/bulkstep/internal/catalog"
	"github.com/roach88/bulkstep/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (store rejected a chunk, cycle, blocked delete)
	ExitCommandError = 2 // Command error (bad config, unreadable schema or input file)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric          = "E001" // Generic/unknown error
	ErrCodeConfig           = "E002" // Config file or environment invalid
	ErrCodeSchema           = "E003" // Schema could not be loaded or compiled
	ErrCodeDatabase         = "E004" // Database could not be opened
	ErrCodeInput            = "E005" // Input file unreadable or malformed
	ErrCodeConfiguration    = "E101" // Bad step, unknown type or field
	ErrCodeTypeMismatch     = "E102" // Entities of the wrong type
	ErrCodeCyclicDependency = "E103" // Foreign-key cycle among types
	ErrCodeStoreOperation   = "E104" // Store rejected a chunk
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set once the error has been written through an
	// OutputFormatter, so main does not print it twice.
	Reported bool
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

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already written to the user.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E101", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Emit outputs data as JSON, or calls text to render it for humans.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	return text(f.Writer)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns it wrapped in a reported ExitError.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	code, details := describe(err)
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	exitErr := WrapExitError(exitCode, message, err)
	exitErr.Reported = true
	return exitErr
}

// FailCode is Fail with an explicit error code for errors that carry none.
func (f *OutputFormatter) FailCode(exitCode int, code, message string, err error) error {
	if c, _ := describe(err); c != "" {
		return f.Fail(exitCode, message, err)
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	exitErr := WrapExitError(exitCode, message, err)
	exitErr.Reported = true
	return exitErr
}

// describe maps domain errors to a CLI error code and detail payload.
func describe(err error) (string, any) {
	var cerr *catalog.CompileError
	if errors.As(err, &cerr) {
		return ErrCodeSchema, map[string]string{"field": cerr.Field}
	}

	var merr *model.Error
	if !errors.As(err, &merr) {
		return "", nil
	}
	switch merr.Code {
	case model.ErrCodeConfiguration:
		return ErrCodeConfiguration, nil
	case model.ErrCodeTypeMismatch:
		return ErrCodeTypeMismatch, nil
	case model.ErrCodeCyclicDependency:
		return ErrCodeCyclicDependency, map[string]any{"types": merr.Types}
	case model.ErrCodeStoreOperation:
		return ErrCodeStoreOperation, map[string]any{
			"type":    merr.EntityType,
			"mode":    merr.Mode,
			"chunk":   merr.Chunk,
			"applied": merr.Applied,
		}
	}
	return "", nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
