package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "resource not found")
		if err.Error() != "[not-found] resource not found" {
			t.Errorf("expected [not-found] resource not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		expected := "[internal-error] internal failure: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeUnresolvedImport, "cannot resolve ./x")
		if !IsCode(err, CodeUnresolvedImport) {
			t.Error("expected IsCode to return true for CodeUnresolvedImport")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("AddContextForeign", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxPath, "/a.js")
		if CodeOf(err) != CodeInternal {
			t.Fatalf("expected internal code, got %s", CodeOf(err))
		}
		if !strings.Contains(err.Error(), "/a.js") {
			t.Errorf("expected context in message, got %s", err.Error())
		}
	})
}

func TestDiagnostic(t *testing.T) {
	d := Diagnostic{
		Code:      CodeParseError,
		Severity:  SeverityError,
		Message:   "unexpected token",
		Path:      "/src/a.js",
		Line:      3,
		Column:    7,
		Specifier: "",
	}
	if got := d.String(); got != "/src/a.js:3:7: error [parse-error] unexpected token" {
		t.Errorf("unexpected diagnostic string %q", got)
	}
	if !IsCode(d.Err(), CodeParseError) {
		t.Error("expected Err() to keep the diagnostic code")
	}

	diags := []Diagnostic{
		{Code: CodeMissingExports, Path: "b.js"},
		{Code: CodeUnresolvedImport, Path: "a.js", Line: 9},
		{Code: CodeUnresolvedImport, Path: "a.js", Line: 2},
	}
	SortDiagnostics(diags)
	if diags[0].Line != 2 || diags[1].Line != 9 || diags[2].Path != "b.js" {
		t.Errorf("unexpected order: %+v", diags)
	}
}
