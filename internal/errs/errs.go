package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a verification error code.
type Code string

const (
	Navigation         Code = "navigation"
	ElementNotFound    Code = "element_not_found"
	NotInteractable    Code = "not_interactable"
	AssertionTimeout   Code = "assertion_timeout"
	IO                 Code = "io"
	InvalidArgument    Code = "invalid_argument"
	FailedPrecondition Code = "failed_precondition"
	Unavailable        Code = "unavailable"
	Internal           Code = "internal"
)

// Diagnostics is the page state observed when a step gave up.
type Diagnostics struct {
	URL        string
	Title      string
	Content    string
	Locator    string
	MatchCount int
	Observed   []string
}

// Error is a coded verification error.
type Error struct {
	Code    Code
	Message string
	Err     error
	Diag    *Diagnostics
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if msg != "" && e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		return string(e.Code)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// WithDiagnostics attaches observed page state to a coded error.
// Untyped errors are wrapped as internal.
func WithDiagnostics(err error, diag Diagnostics) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		cp := *coded
		cp.Diag = &diag
		return &cp
	}
	return &Error{Code: Internal, Err: err, Diag: &diag}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// MessageOf returns the message of a coded error, or "internal error".
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// DiagnosticsOf returns attached diagnostics, if any.
func DiagnosticsOf(err error) (Diagnostics, bool) {
	var coded *Error
	if errors.As(err, &coded) && coded.Diag != nil {
		return *coded.Diag, true
	}
	return Diagnostics{}, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ExitCode maps an error code to a process exit status.
func ExitCode(code Code) int {
	switch code {
	case InvalidArgument:
		return 2
	case Navigation, ElementNotFound, NotInteractable, AssertionTimeout:
		return 1
	case IO:
		return 3
	case FailedPrecondition, Unavailable:
		return 4
	default:
		return 1
	}
}

// Format renders the error with its diagnostics for terminal output.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", CodeOf(err), err.Error())
	diag, ok := DiagnosticsOf(err)
	if !ok {
		return b.String()
	}
	if diag.Locator != "" {
		fmt.Fprintf(&b, "\n  locator: %s (matches: %d)", diag.Locator, diag.MatchCount)
	}
	if diag.URL != "" {
		fmt.Fprintf(&b, "\n  url:     %s", diag.URL)
	}
	if diag.Title != "" {
		fmt.Fprintf(&b, "\n  title:   %s", diag.Title)
	}
	for _, o := range diag.Observed {
		fmt.Fprintf(&b, "\n  observed: %s", o)
	}
	if diag.Content != "" {
		fmt.Fprintf(&b, "\n  content: %s", diag.Content)
	}
	return b.String()
}
