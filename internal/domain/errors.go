package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Tag them with a subsystem via NewSubSystemError so
// ErrorCodeOf can report e.g. SEARCH_TIMEOUT instead of TIMEOUT.
var (
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("operation timed out")
	ErrDisabled      = errors.New("disabled")
	ErrInvalidInput  = errors.New("invalid input")
	ErrProviderError = errors.New("provider error")
)

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrToolFailure  = errors.New("tool execution failed")
	ErrSSRFBlocked  = errors.New("request to private/reserved IP blocked")
	ErrRateLimit    = errors.New("rate limit exceeded")
)

// DomainError attaches an operation and a human-readable detail to a sentinel.
type DomainError struct {
	Op        string // e.g. "WebFetcher.Fetch"
	Err       error
	Detail    string
	SubSystem string // "search", "fetch" or "docs"; empty when untagged
	Cause     error  // optional underlying error, also matched by errors.Is
}

func (e *DomainError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
}

// Unwrap exposes both the sentinel and, when set, the cause.
func (e *DomainError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// WithCause records the error that triggered e and returns e.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError is NewDomainError plus a subsystem tag.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp prefixes err with op and returns nil for a nil err.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorDetail returns the Detail of the outermost DomainError in err's chain.
// Errors without one are rendered whole.
func ErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}

// IsRetryableError reports whether err is transient.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrProviderError) || errors.Is(err, ErrRateLimit)
}

// ErrorCode is a stable, machine-readable failure category used in logs.
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeDisabled      ErrorCode = "DISABLED"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"

	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure  ErrorCode = "TOOL_FAILURE"
	CodeSSRFBlocked  ErrorCode = "SSRF_BLOCKED"
	CodeRateLimit    ErrorCode = "RATE_LIMIT"

	CodeSearchTimeout     ErrorCode = "SEARCH_TIMEOUT"
	CodeSearchUnavailable ErrorCode = "SEARCH_UNAVAILABLE"
	CodeFetchTimeout      ErrorCode = "FETCH_TIMEOUT"
	CodeFetchFailed       ErrorCode = "FETCH_FAILED"
	CodeDocsTimeout       ErrorCode = "DOCS_TIMEOUT"
	CodeDocsUnavailable   ErrorCode = "DOCS_UNAVAILABLE"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrTimeout:       CodeTimeout,
	ErrDisabled:      CodeDisabled,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,
	ErrToolNotFound:  CodeToolNotFound,
	ErrToolFailure:   CodeToolFailure,
	ErrSSRFBlocked:   CodeSSRFBlocked,
	ErrRateLimit:     CodeRateLimit,
}

// subSystemCodeMap refines a category sentinel by subsystem.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrTimeout: {
		"search": CodeSearchTimeout,
		"fetch":  CodeFetchTimeout,
		"docs":   CodeDocsTimeout,
	},
	ErrProviderError: {
		"search": CodeSearchUnavailable,
		"fetch":  CodeFetchFailed,
		"docs":   CodeDocsUnavailable,
	},
}

// ErrorCodeOf resolves err to an ErrorCode, preferring the subsystem-specific
// code of a tagged DomainError. Unrecognised errors are CodeUnknown.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code returns the code for e's own sentinel, without walking further.
func (e *DomainError) Code() ErrorCode {
	if byKind, ok := subSystemCodeMap[e.Err]; ok && e.SubSystem != "" {
		if code, ok := byKind[e.SubSystem]; ok {
			return code
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
