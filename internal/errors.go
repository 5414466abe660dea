package internal

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// SendError is an error type that carries where in a burst a fault happened
type SendError struct {
	Err       error  // The underlying error
	Code      string // Error code for categorization
	Component string // The component where the error occurred
	Op        string // The operation being performed
	Iteration int    // 1-based packet index, 0 when not tied to a packet
	File      string // The file where the error occurred
	Line      int    // The line where the error occurred
	Context   string // Additional contextual information
}

// Error returns the error message
func (e *SendError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s in %s: ", e.Code, e.Op, e.Component))

	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	} else {
		sb.WriteString("unknown error")
	}

	if e.Iteration > 0 {
		sb.WriteString(fmt.Sprintf(" (packet %d)", e.Iteration))
	}

	if e.Context != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", e.Context))
	}

	if e.File != "" && e.Line > 0 {
		sb.WriteString(fmt.Sprintf(" at %s:%d", e.File, e.Line))
	}

	return sb.String()
}

// Unwrap returns the underlying error
func (e *SendError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a SendError with the same code
func (e *SendError) Is(target error) bool {
	var other *SendError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// Error codes
const (
	ErrCodeNetwork       = "NETWORK_ERROR"
	ErrCodeIO            = "IO_ERROR"
	ErrCodeConfiguration = "CONFIG_ERROR"
	ErrCodeDatabase      = "DB_ERROR"
	ErrCodeRTP           = "RTP_ERROR"
	ErrCodeSRTP          = "SRTP_ERROR"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeCanceled      = "CANCELED"
	ErrCodeVerification  = "VERIFY_ERROR"
)

// NewError creates a new error with contextual information
func NewError(err error, code string, component string, op string) *SendError {
	_, file, line, _ := runtime.Caller(1)

	fileParts := strings.Split(file, "/")
	shortFile := fileParts[len(fileParts)-1]

	return &SendError{
		Err:       err,
		Code:      code,
		Component: component,
		Op:        op,
		File:      shortFile,
		Line:      line,
	}
}

// WithContext adds contextual information to the error
func (e *SendError) WithContext(ctx string) *SendError {
	e.Context = ctx
	return e
}

// WithIteration records the packet index the error belongs to
func (e *SendError) WithIteration(i int) *SendError {
	e.Iteration = i
	return e
}

// ErrorCode returns the code of the first SendError in err's chain
func ErrorCode(err error) string {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Code
	}
	return ""
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return ErrorCode(err) == ErrCodeNetwork
}

// IsRTPError checks if an error is an RTP or SRTP error
func IsRTPError(err error) bool {
	code := ErrorCode(err)
	return code == ErrCodeRTP || code == ErrCodeSRTP
}

// IsConfigError checks if an error comes from configuration validation
func IsConfigError(err error) bool {
	return ErrorCode(err) == ErrCodeConfiguration
}
