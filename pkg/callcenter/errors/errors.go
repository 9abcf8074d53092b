package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Newf creates a new AppError with a formatted message and no cause
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// Error codes
const (
	ErrCodeInvalidAgentConfig = "INVALID_AGENT_CONFIG"
	ErrCodeAgentNotFound      = "AGENT_NOT_FOUND"
	ErrCodePlayback           = "PLAYBACK_FAILED"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeBackendTurn        = "BACKEND_TURN_FAILED"
	ErrCodeToolValidation     = "TOOL_VALIDATION_FAILED"
	ErrCodeToolNotFound       = "TOOL_NOT_FOUND"
	ErrCodeToolExecution      = "TOOL_EXECUTION_FAILED"
	ErrCodeCallFailed         = "CALL_FAILED"
	ErrCodeInvalidState       = "INVALID_CALL_STATE"
	ErrCodeAudioBusy          = "AUDIO_OUTPUT_BUSY"
	ErrCodeSessionClosed      = "SESSION_CLOSED"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeCRMRequest         = "CRM_REQUEST_FAILED"
	ErrCodeScheduleRejected   = "SCHEDULE_REJECTED"
)
