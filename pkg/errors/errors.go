// Package errors provides structured, coded errors for simlog.
// Every error carries a code for programmatic handling, optional context
// key/values and a short stack trace captured at construction.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound     Code = "E101"
	CodeParseFailed      Code = "E102"
	CodeInvalidConfig    Code = "E103"
	CodeMissingFrequency Code = "E104"

	// Model errors (2xx)
	CodeMalformedTree       Code = "E201"
	CodeBudgetMismatch      Code = "E202"
	CodeBudgetInconsistency Code = "E203"

	// Output errors (3xx)
	CodeWriteFailed   Code = "E301"
	CodeStorageFailed Code = "E302"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeScoringFailed   Code = "E402"

	CodeUnknown Code = "E999"
)

// SimlogError is the base error type for all simlog errors.
type SimlogError struct {
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

// Error implements the error interface. Context keys are printed sorted.
func (e *SimlogError) Error() string {
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
func (e *SimlogError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a SimlogError with the same code.
func (e *SimlogError) Is(target error) bool {
	if t, ok := target.(*SimlogError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *SimlogError) WithContext(key string, value interface{}) *SimlogError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new SimlogError.
func New(code Code, message string) *SimlogError {
	return &SimlogError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new SimlogError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *SimlogError {
	return &SimlogError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message. Wrap(nil, ...) is nil.
func Wrap(err error, code Code, message string) *SimlogError {
	if err == nil {
		return nil
	}

	return &SimlogError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *SimlogError {
	if err == nil {
		return nil
	}
	return &SimlogError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
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
func (e *SimlogError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *SimlogError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MalformedTree reports an operator node with an unexpected shape.
func MalformedTree(node string, reason string) *SimlogError {
	return New(CodeMalformedTree, reason).WithContext("node", node)
}

// MissingFrequency reports a leaf without an observed firing count.
func MissingFrequency(name string) *SimlogError {
	return New(CodeMissingFrequency, "no firing count for leaf").WithContext("leaf", name)
}

// ParseError creates a parsing error with location.
func ParseError(format string, offset int, err error) *SimlogError {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("offset", offset)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *SimlogError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var sErr *SimlogError
	if errors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var sErr *SimlogError
	if errors.As(err, &sErr) {
		return sErr.Code
	}
	return CodeUnknown
}

// IsFatal returns true for model errors that no retry can fix.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeMalformedTree, CodeBudgetMismatch, CodeMissingFrequency:
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
