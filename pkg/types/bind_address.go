// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"net"
)

// ErrInvalidBindAddress is the sentinel error wrapped by InvalidBindAddressError.
var ErrInvalidBindAddress = errors.New("invalid bind address")

// AllInterfaces is the address the notebook server must bind inside the
// container so that published ports reach it from outside.
const AllInterfaces BindAddress = "0.0.0.0"

type (
	// BindAddress is the IP address the notebook server listens on.
	// It must parse as an IP literal; hostnames are not accepted because the
	// value is written verbatim into the server's runtime config.
	BindAddress string

	// InvalidBindAddressError is returned when a BindAddress is not an IP literal.
	InvalidBindAddressError struct {
		Value BindAddress
	}
)

// String returns the string representation of the BindAddress.
func (a BindAddress) String() string { return string(a) }

// Validate returns an error unless the address parses as an IP literal.
func (a BindAddress) Validate() error {
	if net.ParseIP(string(a)) == nil {
		return &InvalidBindAddressError{Value: a}
	}
	return nil
}

// IsAllInterfaces reports whether the address is the all-interfaces address.
func (a BindAddress) IsAllInterfaces() bool { return a == AllInterfaces }

// Error implements the error interface for InvalidBindAddressError.
func (e *InvalidBindAddressError) Error() string {
	return fmt.Sprintf("invalid bind address %q: must be an IP literal", e.Value)
}

// Unwrap returns ErrInvalidBindAddress for errors.Is() compatibility.
func (e *InvalidBindAddressError) Unwrap() error { return ErrInvalidBindAddress }
