// Package errors provides severity-aware error types.
package errors

import (
	"fmt"
	"strings"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON payloads.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name written by MarshalText.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	case "fatal":
		*s = SeverityFatal
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// DiagramError is a structured error with context.
type DiagramError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Phrase      string   `json:"phrase,omitempty"`
	Recoverable bool     `json:"recoverable"`

	cause error
}

func (e *DiagramError) Error() string {
	if e.Phrase != "" {
		return fmt.Sprintf("[%s] %s: %s (phrase: %q)", e.Severity, e.Code, e.Message, e.Phrase)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

func (e *DiagramError) Unwrap() error {
	return e.cause
}

// Is matches any DiagramError carrying the same code, so callers can use
// errors.Is(err, errors.ErrEmptyArchitecture).
func (e *DiagramError) Is(target error) bool {
	t, ok := target.(*DiagramError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsWarning reports whether the error is informational for the caller.
func (e *DiagramError) IsWarning() bool {
	return e.Severity <= SeverityWarning
}

// Error codes
const (
	ErrCodeCatalogLoadFailed      = "CATALOG_LOAD_FAILED"
	ErrCodeUnsupportedDiagramType = "UNSUPPORTED_DIAGRAM_TYPE"
	ErrCodeEmptyArchitecture      = "EMPTY_ARCHITECTURE"
	ErrCodeUnresolvedEntity       = "UNRESOLVED_ENTITY"
	ErrCodeAmbiguousMatch         = "AMBIGUOUS_MATCH"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeUnsupportedFormat      = "UNSUPPORTED_FORMAT"
)

// Sentinels for errors.Is comparisons.
var (
	ErrCatalogLoad            = &DiagramError{Code: ErrCodeCatalogLoadFailed}
	ErrUnsupportedDiagramType = &DiagramError{Code: ErrCodeUnsupportedDiagramType}
	ErrEmptyArchitecture      = &DiagramError{Code: ErrCodeEmptyArchitecture}
	ErrUnresolvedEntity       = &DiagramError{Code: ErrCodeUnresolvedEntity}
	ErrAmbiguousMatch         = &DiagramError{Code: ErrCodeAmbiguousMatch}
	ErrInvalidRequest         = &DiagramError{Code: ErrCodeInvalidRequest}
	ErrUnsupportedFormat      = &DiagramError{Code: ErrCodeUnsupportedFormat}
)

// NewCatalogLoadError creates an error for a catalog source that could not be read.
func NewCatalogLoadError(source string, cause error) *DiagramError {
	msg := fmt.Sprintf("failed to load service catalog from %s", source)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &DiagramError{
		Code:        ErrCodeCatalogLoadFailed,
		Message:     msg,
		Severity:    SeverityFatal,
		Recoverable: false,
		cause:       cause,
	}
}

// NewUnsupportedDiagramTypeError creates an error for a diagram type with no template.
func NewUnsupportedDiagramTypeError(diagramType string) *DiagramError {
	return &DiagramError{
		Code:        ErrCodeUnsupportedDiagramType,
		Message:     fmt.Sprintf("unsupported diagram type: %q", diagramType),
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewUnsupportedFormatError creates an error for a source format the diagram
// type has no template for. diagramType may be empty when the format name
// itself is unknown.
func NewUnsupportedFormatError(diagramType, format string, supported []string) *DiagramError {
	msg := fmt.Sprintf("unsupported format %q", format)
	if diagramType != "" {
		msg = fmt.Sprintf("format %q is not supported for %s diagrams", format, diagramType)
	}
	return &DiagramError{
		Code:        ErrCodeUnsupportedFormat,
		Message:     fmt.Sprintf("%s (supported: %s)", msg, strings.Join(supported, ", ")),
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewEmptyArchitectureError creates an error for descriptions that resolve to no service.
func NewEmptyArchitectureError() *DiagramError {
	return &DiagramError{
		Code:        ErrCodeEmptyArchitecture,
		Message:     "no component of the description resolved to a catalog service",
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewUnresolvedEntityWarning reports a phrase that matched no catalog service.
func NewUnresolvedEntityWarning(phrase string) *DiagramError {
	return &DiagramError{
		Code:        ErrCodeUnresolvedEntity,
		Message:     "no catalog service matches this component; it was left out of the diagram",
		Severity:    SeverityWarning,
		Phrase:      phrase,
		Recoverable: true,
	}
}

// NewAmbiguousMatchWarning reports a near tie between two services of the same provider.
func NewAmbiguousMatchWarning(phrase, chosen, runnerUp string) *DiagramError {
	return &DiagramError{
		Code:        ErrCodeAmbiguousMatch,
		Message:     fmt.Sprintf("matched %s, but %s scored almost the same", chosen, runnerUp),
		Severity:    SeverityWarning,
		Phrase:      phrase,
		Recoverable: true,
	}
}

// NewInvalidRequestError creates an error for malformed caller input.
func NewInvalidRequestError(message string) *DiagramError {
	return &DiagramError{
		Code:        ErrCodeInvalidRequest,
		Message:     message,
		Severity:    SeverityError,
		Recoverable: false,
	}
}
