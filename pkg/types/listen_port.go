// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidListenPort is the sentinel error wrapped by InvalidListenPortError.
var ErrInvalidListenPort = errors.New("invalid listen port")

type (
	// ListenPort is the TCP port the notebook server binds inside the
	// container. It must be a fixed value in 1-65535: the container contract
	// publishes a known port, so "pick any free port" (0) is not allowed.
	ListenPort int

	// InvalidListenPortError is returned when a ListenPort is outside 1-65535.
	InvalidListenPortError struct {
		Value ListenPort
	}
)

// String returns the decimal representation of the ListenPort.
func (p ListenPort) String() string { return strconv.Itoa(int(p)) }

// Validate returns an error unless the port is in 1-65535.
func (p ListenPort) Validate() error {
	if p < 1 || p > 65535 {
		return &InvalidListenPortError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidListenPortError.
func (e *InvalidListenPortError) Error() string {
	return fmt.Sprintf("invalid listen port %d: must be in range 1-65535", e.Value)
}

// Unwrap returns ErrInvalidListenPort for errors.Is() compatibility.
func (e *InvalidListenPortError) Unwrap() error { return ErrInvalidListenPort }
