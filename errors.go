package uvdevice

import (
	"errors"
	"fmt"
)

// Common errors returned by the uvdevice package.
var (
	// ErrSpecification is returned when a command violates the ioctl
	// protocol before it reaches the device, e.g. a payload that does
	// not fit the control block's 32-bit length field.
	ErrSpecification = errors.New("uvdevice: specification violation")
	// ErrFileAccess is returned when the device file cannot be opened or
	// the handle is already closed.
	ErrFileAccess = errors.New("uvdevice: device file access failed")
	// ErrIoctl is returned when the control operation itself fails at
	// the operating system level. The underlying errno is wrapped.
	ErrIoctl = errors.New("uvdevice: ioctl failed")
)

// ErrorWithMessage represents an error with an additional descriptive message.
type ErrorWithMessage struct {
	Message string
	Err     error
}

// newErrorMessage creates a new ErrorWithMessage.
func newErrorMessage(err error, msg string) *ErrorWithMessage {
	return &ErrorWithMessage{
		Message: msg,
		Err:     err,
	}
}

// Error returns the string representation of the error.
func (m *ErrorWithMessage) Error() string {
	if m.Message != "" {
		return m.Err.Error() + " (" + m.Message + ")"
	}
	return m.Err.Error()
}

// Unwrap returns the underlying error.
func (m *ErrorWithMessage) Unwrap() error {
	return m.Err
}

// CmdError reports that the Ultravisor accepted the call but answered with a
// non-success response code pair. RC and RRC are the raw response and reason
// response code, Msg is best-effort human-readable text. Replaying the same
// request yields the same codes, so a CmdError is never worth a retry.
type CmdError struct {
	RC  uint16
	RRC uint16
	Msg string
}

// Error returns the string representation of the error.
func (e *CmdError) Error() string {
	return fmt.Sprintf("uvdevice: ultravisor error: %s (rc %#06x, rrc %#06x)", e.Msg, e.RC, e.RRC)
}
