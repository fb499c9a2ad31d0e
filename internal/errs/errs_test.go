package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{
	Navigation,
	ElementNotFound,
	NotInteractable,
	AssertionTimeout,
	IO,
	InvalidArgument,
	FailedPrecondition,
	Unavailable,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOfAndMessageOf_WrappedTypedError(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(wrapped); got != message {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, message)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("wrapped error lost its cause")
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Fatalf("Error() should include cause: %q", err.Error())
	}
}

func TestCodeOfAndMessageOf_WrappedTypedError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOfAndMessageOf_WrappedTypedError)
}

func testUntypedAndNilFallbacks(t *rapid.T) {
	raw := rapid.StringMatching(`[a-zA-Z0-9 _:\-./]{1,80}`).Draw(t, "raw")
	untyped := errors.New(raw)

	if got := CodeOf(untyped); got != Internal {
		t.Fatalf("CodeOf(untyped) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(untyped); got != "internal error" {
		t.Fatalf("MessageOf(untyped) mismatch: got=%q want=%q", got, "internal error")
	}
	if got := CodeOf(nil); got != Internal {
		t.Fatalf("CodeOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(nil); got != string(Internal) {
		t.Fatalf("MessageOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
}

func TestUntypedAndNilFallbacks(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testUntypedAndNilFallbacks)
}

func testWithDiagnostics_PreservesCode(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	count := rapid.IntRange(0, 5).Draw(t, "count")
	original := New(code, "step failed")

	err := WithDiagnostics(original, Diagnostics{URL: "http://app.test/admin", MatchCount: count})
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf mismatch after diagnostics: got=%q want=%q", got, code)
	}
	diag, ok := DiagnosticsOf(err)
	if !ok || diag.MatchCount != count {
		t.Fatalf("diagnostics not attached: ok=%v diag=%+v", ok, diag)
	}
	if _, ok := DiagnosticsOf(original); ok {
		t.Fatalf("WithDiagnostics must not mutate the original error")
	}
}

func TestWithDiagnostics_PreservesCode(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testWithDiagnostics_PreservesCode)
}

func TestExitCode_NonZeroForEveryCode(t *testing.T) {
	t.Parallel()
	for _, code := range append(allCodes, Code("unknown_code")) {
		if got := ExitCode(code); got == 0 {
			t.Fatalf("ExitCode(%q) = 0, want non-zero", code)
		}
	}
}

func TestFormat_IncludesDiagnostics(t *testing.T) {
	t.Parallel()
	err := WithDiagnostics(New(AssertionTimeout, "text never appeared"), Diagnostics{
		URL:        "http://app.test/admin",
		Title:      "SP Admin",
		Locator:    `text "Quote Submitted Successfully!"`,
		MatchCount: 0,
		Observed:   []string{"visible=false"},
	})

	out := Format(err)
	for _, want := range []string{"[assertion_timeout]", "text never appeared", "http://app.test/admin", "SP Admin", "visible=false"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Format output missing %q:\n%s", want, out)
		}
	}
	if Format(nil) != "" {
		t.Fatalf("Format(nil) should be empty")
	}
}
