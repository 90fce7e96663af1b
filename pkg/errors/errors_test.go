package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSimlogError_Error(t *testing.T) {
	err := New(CodeMalformedTree, "loop needs two children").
		WithContext("node", "*( 'A' )").
		WithContext("children", 1)

	got := err.Error()
	want := "[E201] loop needs two children (children=1, node=*( 'A' ))"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeWriteFailed, "write snapshot")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !strings.HasSuffix(err.Error(), ": disk full") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
	if Wrap(nil, CodeWriteFailed, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestIsCode(t *testing.T) {
	base := New(CodeBudgetInconsistency, "root retries exhausted")
	wrapped := fmt.Errorf("replicate 3: %w", base)

	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{"direct", base, CodeBudgetInconsistency, true},
		{"wrapped", wrapped, CodeBudgetInconsistency, true},
		{"other code", base, CodeMalformedTree, false},
		{"plain error", fmt.Errorf("x"), CodeBudgetInconsistency, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode() = %v, want %v", got, tt.want)
			}
		})
	}

	if !errors.Is(wrapped, &SimlogError{Code: CodeBudgetInconsistency}) {
		t.Error("errors.Is should match on code")
	}
	if GetCode(fmt.Errorf("x")) != CodeUnknown {
		t.Error("GetCode of plain error should be CodeUnknown")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(MalformedTree("X()", "no children")) {
		t.Error("malformed tree should be fatal")
	}
	if IsFatal(New(CodeBudgetInconsistency, "x")) {
		t.Error("budget inconsistency should not be fatal")
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.Combined() != nil {
		t.Error("empty MultiError should combine to nil")
	}

	m.Add(nil)
	m.Add(fmt.Errorf("first"))
	if m.Combined().Error() != "first" {
		t.Errorf("single error should be returned as-is, got %v", m.Combined())
	}

	m.Add(fmt.Errorf("second"))
	if !strings.Contains(m.Error(), "2 errors occurred") {
		t.Errorf("unexpected message %q", m.Error())
	}
}
