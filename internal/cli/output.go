package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/shelf/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation or validation failure (store error, failed scenario, failed check)
	ExitCommandError = 2 // Command error (bad config, invalid paths, unreadable input)
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeBadInput    = "E007" // Record or file could not be parsed
	ErrCodeConfig      = "E008" // Configuration invalid
	ErrCodeCollection  = "E009" // Collection missing or ambiguous
	ErrCodeOpenFailed  = "E010" // Backend could not be opened

	// Store errors
	ErrCodeRecordNotFound    = "E201" // NOT_FOUND
	ErrCodeAlreadyExists     = "E202" // ALREADY_EXISTS
	ErrCodeInvalidPredicate  = "E203" // INVALID_PREDICATE
	ErrCodeInvalidProjection = "E204" // INVALID_FIELD_PROJECTION
	ErrCodeInvalidRecord     = "E205" // INVALID_RECORD
	ErrCodeCheckFailed       = "E210" // check found inconsistencies
	ErrCodeScenariosFailed   = "E220" // one or more scenarios failed
)

// StoreErrorCode maps a store error to its CLI error code.
func StoreErrorCode(err error) string {
	switch ir.CodeOf(err) {
	case ir.ErrCodeNotFound:
		return ErrCodeRecordNotFound
	case ir.ErrCodeAlreadyExists:
		return ErrCodeAlreadyExists
	case ir.ErrCodeInvalidPredicate:
		return ErrCodeInvalidPredicate
	case ir.ErrCodeInvalidFieldProjection:
		return ErrCodeInvalidProjection
	case ir.ErrCodeInvalidRecord:
		return ErrCodeInvalidRecord
	default:
		return ErrCodeGeneric
	}
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
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
	Code    string `json:"code"`              // "E001", "E201", etc.
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

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
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

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Store errors exit with ExitFailure, anything else with ExitCommandError.
func (f *OutputFormatter) Fail(code string, err error) error {
	exit := ExitCommandError
	var se *ir.StoreError
	if errors.As(err, &se) {
		exit = ExitFailure
		_ = f.Error(code, err.Error(), se)
	} else {
		_ = f.Error(code, err.Error(), nil)
	}
	return WrapExitError(exit, code, err)
}

// Records outputs records: a JSON array, or one canonical JSON line per
// record in text mode.
func (f *OutputFormatter) Records(recs []ir.Object) error {
	if f.Format == "json" {
		if recs == nil {
			recs = []ir.Object{}
		}
		return f.Success(recs)
	}
	for _, rec := range recs {
		line, err := ir.MarshalCanonical(rec)
		if err != nil {
			return err
		}
		fmt.Fprintln(f.Writer, string(line))
	}
	return nil
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

// jsonEncode writes an indented JSON document.
func jsonEncode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    w,
		ErrWriter: errW, // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
