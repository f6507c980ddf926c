// internal/coordinator/errors.go
package coordinator

import "errors"

var (
	ErrUnknownRegister = errors.New("unknown register")
	ErrNotWritable     = errors.New("register not writable")
	ErrInvalidValue    = errors.New("invalid value")
	ErrNotContiguous   = errors.New("registers not contiguous")
	ErrUnknownDevice   = errors.New("unknown device")
	ErrAlreadyStarted  = errors.New("coordinator already started")
)
