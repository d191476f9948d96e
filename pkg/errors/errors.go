// Package errors provides structured, coded errors for skuflow.
// It implements the schema/row/pipeline taxonomy with context and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound      Code = "E101"
	CodeUnsupportedFormat Code = "E102"
	CodeFileTooLarge      Code = "E103"
	CodeEncoding          Code = "E104"
	CodeUnreadable        Code = "E105"

	// Schema errors (2xx)
	CodeSchema     Code = "E201"
	CodeEmptyTable Code = "E202"

	// Pipeline errors (3xx)
	CodeStage     Code = "E301"
	CodeTransform Code = "E302"
	CodeRow       Code = "E303"

	// Upload state errors (4xx)
	CodeUploadNotFound    Code = "E401"
	CodeRunInProgress     Code = "E402"
	CodeAlreadyProcessed  Code = "E403"
	CodeInvalidTransition Code = "E404"

	// Storage errors (5xx)
	CodeStorageOpen  Code = "E501"
	CodeStorageWrite Code = "E502"
	CodeBlob         Code = "E503"
	CodeLock         Code = "E504"

	// System errors (6xx)
	CodeCanceled Code = "E601"
	CodeConfig   Code = "E602"
	CodePanic    Code = "E603"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all skuflow errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Taxonomy constructors ---

// Schema creates a SchemaError: the table is too malformed to profile.
func Schema(message string) *Error {
	return &Error{Code: CodeSchema, Message: message, StackTrace: captureStack(2)}
}

// EmptyTable creates the SchemaError raised for tables without rows or columns.
func EmptyTable(rows, columns int) *Error {
	e := &Error{Code: CodeEmptyTable, Message: "table has no data to profile", StackTrace: captureStack(2)}
	return e.WithContext("rows", rows).WithContext("columns", columns)
}

// Stage creates a PipelineError for a failed pipeline stage.
// The cause message is preserved verbatim in the error text.
func Stage(stage string, err error) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Code: CodeStage, Message: stage + " stage failed", Cause: err, StackTrace: captureStack(2)}
	return e.WithContext("stage", stage)
}

// UploadNotFound creates an error for an unknown upload id.
func UploadNotFound(id string) *Error {
	return New(CodeUploadNotFound, "upload not found").WithContext("upload_id", id)
}

// RunInProgress creates the rejection returned for a concurrent process request.
func RunInProgress(id string) *Error {
	return New(CodeRunInProgress, "upload is already being processed").WithContext("upload_id", id)
}

// AlreadyProcessed creates the rejection for a finished upload without a rerun request.
func AlreadyProcessed(id, status string) *Error {
	return New(CodeAlreadyProcessed, "upload already finished; request a rerun to process it again").
		WithContext("upload_id", id).
		WithContext("status", status)
}

// FileNotFound creates a file not found error.
func FileNotFound(path string) *Error {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// UnsupportedFormat creates an error for an upload with a disallowed extension.
func UnsupportedFormat(name string, allowed []string) *Error {
	return New(CodeUnsupportedFormat, "file type not allowed").
		WithContext("file", name).
		WithContext("allowed", strings.Join(allowed, ", "))
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string, cause error) *Error {
	e := &Error{Code: CodeCanceled, Message: "operation canceled", Cause: cause, StackTrace: captureStack(2)}
	return e.WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsSchemaError reports whether err aborts a run before any schema exists.
func IsSchemaError(err error) bool {
	switch GetCode(err) {
	case CodeSchema, CodeEmptyTable:
		return true
	default:
		return false
	}
}

// IsRejection reports whether err is a refused process request that left
// the upload state untouched.
func IsRejection(err error) bool {
	switch GetCode(err) {
	case CodeRunInProgress, CodeAlreadyProcessed, CodeUploadNotFound:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
