package mealwise

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes stage failures.
type ErrorKind string

const (
	ErrProvider  ErrorKind = "ProviderError"
	ErrNotFound  ErrorKind = "NotFound"
	ErrGuardrail ErrorKind = "GuardrailViolation"
	ErrDecode    ErrorKind = "DecodeError"
	ErrTimeout   ErrorKind = "Timeout"
)

// Recoverable reports whether the pipeline can continue past a failure of this kind.
func (k ErrorKind) Recoverable() bool {
	return k != ErrDecode
}

// AgentError is a structured stage error.
type AgentError struct {
	Kind    ErrorKind `json:"kind"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s (caused by: %v)", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Cause
}

func NewProviderError(op, message string, cause error) *AgentError {
	return &AgentError{Kind: ErrProvider, Op: op, Message: message, Cause: cause}
}

func NewNotFoundError(op, message string) *AgentError {
	return &AgentError{Kind: ErrNotFound, Op: op, Message: message}
}

func NewGuardrailError(op, message string) *AgentError {
	return &AgentError{Kind: ErrGuardrail, Op: op, Message: message}
}

func NewDecodeError(op, message string, cause error) *AgentError {
	return &AgentError{Kind: ErrDecode, Op: op, Message: message, Cause: cause}
}

func NewTimeoutError(op string, cause error) *AgentError {
	return &AgentError{Kind: ErrTimeout, Op: op, Message: "deadline exceeded", Cause: cause}
}

// KindOf classifies err. Deadline errors map to Timeout and anything unstructured to ProviderError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrProvider
}

// IsKind checks if err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// StatusCode maps an error to the HTTP status used by the transport layer.
func StatusCode(err error) int {
	switch KindOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrDecode:
		return http.StatusUnprocessableEntity
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrGuardrail:
		return http.StatusUnprocessableEntity
	case "":
		return http.StatusOK
	}
	return http.StatusBadGateway
}
