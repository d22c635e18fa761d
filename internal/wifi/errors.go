package wifi

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeRadioMode indicates the radio could not enter or leave a mode
	ErrTypeRadioMode ErrorType = iota
	// ErrTypeConfigValidation indicates submitted or stored settings are malformed
	ErrTypeConfigValidation
	// ErrTypeLinkLoss indicates an established station link went away
	ErrTypeLinkLoss
	// ErrTypeStore indicates the credential store could not be read or written
	ErrTypeStore
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeRadioMode:
		return "Radio Mode Error"
	case ErrTypeConfigValidation:
		return "Validation Error"
	case ErrTypeLinkLoss:
		return "Link Lost"
	case ErrTypeStore:
		return "Store Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the error type shared by the connectivity packages.
type Error struct {
	Type      ErrorType // Category of error
	Op        string    // Operation that failed, e.g. "enter access point"
	Message   string    // Human-readable error message
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether the supervisor should try again later
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Type.String()
	if e.Op != "" {
		prefix = fmt.Sprintf("%s (%s)", prefix, e.Op)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewRadioModeError creates a radio mode error. These are always retryable.
func NewRadioModeError(op string, err error) *Error {
	return &Error{
		Type:      ErrTypeRadioMode,
		Op:        op,
		Message:   "radio mode change failed",
		Err:       err,
		Retryable: true,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *Error {
	return &Error{
		Type:    ErrTypeConfigValidation,
		Message: message,
	}
}

// NewLinkLossError creates a link loss error
func NewLinkLossError(ssid string) *Error {
	return &Error{
		Type:      ErrTypeLinkLoss,
		Message:   fmt.Sprintf("link to %q lost", ssid),
		Retryable: true,
	}
}

// NewStoreError creates a credential store error
func NewStoreError(op string, err error) *Error {
	return &Error{
		Type:      ErrTypeStore,
		Op:        op,
		Message:   "settings store failure",
		Err:       err,
		Retryable: true,
	}
}

func errorType(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return ErrTypeUnknown, false
}

// IsRadioModeError checks if an error is a radio mode error
func IsRadioModeError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeRadioMode
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeConfigValidation
}

// IsLinkLossError checks if an error is a link loss error
func IsLinkLossError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeLinkLoss
}

// IsStoreError checks if an error is a store error
func IsStoreError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeStore
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// ShortMessage returns a concise message suitable for the status display
func ShortMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Unexpected error"
	}

	switch e.Type {
	case ErrTypeRadioMode:
		return "Setup unavailable\nRetrying..."
	case ErrTypeConfigValidation:
		return "Invalid settings\n" + e.Message
	case ErrTypeLinkLoss:
		return "Connection lost\nReconnecting..."
	case ErrTypeStore:
		return "Could not save settings"
	default:
		return "Unexpected error"
	}
}
