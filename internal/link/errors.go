// internal/link/errors.go
package link

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrConnection = errors.New("connection error")
	ErrRead       = errors.New("read error")
	ErrWrite      = errors.New("write error")

	ErrBounds  = errors.New("request out of bounds")
	ErrTimeout = errors.New("request timed out")
	ErrClosed  = errors.New("link closed")
)

// ExceptionError is a protocol-level exception response.
// Transports return it so the link can keep the connection open.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception %d (function %d)", e.Code, e.Function)
}

// Error is returned by every Link operation.
// It never carries the device's network address.
type Error struct {
	Kind     error
	DeviceID string
	Address  uint16
	Err      error
}

func (e *Error) Error() string {
	if e.Kind == ErrConnection {
		return fmt.Sprintf("link %s: %v: %v", e.DeviceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("link %s: %v at address %d: %v", e.DeviceID, e.Kind, e.Address, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Code is the Modbus exception code, or 1 for any other failure.
func (e *Error) Code() uint16 {
	var ex *ExceptionError
	if errors.As(e.Err, &ex) {
		return uint16(ex.Code)
	}
	return 1
}

// redact strips endpoint details from transport errors.
func redact(err error) error {
	if err == nil {
		return nil
	}

	var ex *ExceptionError
	if errors.As(err, &ex) {
		return ex
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errors.New("name resolution failed")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return ErrTimeout
		}
		if opErr.Err != nil {
			return fmt.Errorf("%s: %w", opErr.Op, redact(opErr.Err))
		}
		return fmt.Errorf("%s failed", opErr.Op)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}

// IsException reports whether err carries a device exception response.
func IsException(err error) bool {
	var ex *ExceptionError
	return errors.As(err, &ex)
}
