package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable short identifier consumed by the CLI and the watch daemon.
type ErrorCode string

const (
	CodeNotFound        ErrorCode = "not-found"
	CodeValidationError ErrorCode = "validation-error"
	CodeInternal        ErrorCode = "internal-error"
	CodeNotSupported    ErrorCode = "not-supported"
	CodeCanceled        ErrorCode = "canceled"

	CodeUnresolvedImport      ErrorCode = "unresolved-import"
	CodeAmbiguousExportsMatch ErrorCode = "ambiguous-exports-match"
	CodeExportsNotDeclared    ErrorCode = "exports-not-declared"
	CodeInvalidPackageJSON    ErrorCode = "invalid-package-json"
	CodeParseError            ErrorCode = "parse-error"
	CodeUnsupportedFile       ErrorCode = "unsupported-file"
	CodeUnsupportedSyntax     ErrorCode = "unsupported-syntax"
	CodeCacheInconsistency    ErrorCode = "cache-inconsistency"
	CodeInternalInvariant     ErrorCode = "internal-invariant"
	CodeDynamicUnresolved     ErrorCode = "dynamic-import-unresolved"
	CodeCircularImport        ErrorCode = "circular-import"
	CodeDeprecatedMainOnly    ErrorCode = "deprecated-main-only"
	CodeMissingExports        ErrorCode = "missing-exports"
	CodeAmbiguousExtension    ErrorCode = "ambiguous-extension"
	CodeMissingExport         ErrorCode = "missing-export"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxSpecifier = "specifier"
	CtxImporter  = "importer"
	CtxLine      = "line"
	CtxColumn    = "column"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Newf(code ErrorCode, format string, args ...interface{}) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches a key/value to err, promoting foreign errors to an
// internal DomainError so the context is never lost.
func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost DomainError in err's chain, or
// CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
