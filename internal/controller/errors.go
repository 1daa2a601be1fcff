package controller

import (
	"errors"
	"fmt"
)

// ErrAlreadyOpen is returned when serial parameters are reconfigured while
// the link is open.
var ErrAlreadyOpen = errors.New("serial device is already open")

// TransportError wraps a failure to open or write to the serial link.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
