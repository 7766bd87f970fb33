// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestBindAddressValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     BindAddress
		wantValid bool
	}{
		{name: "all interfaces is valid", value: "0.0.0.0", wantValid: true},
		{name: "loopback is valid", value: "127.0.0.1", wantValid: true},
		{name: "ipv6 literal is valid", value: "::", wantValid: true},
		{name: "hostname is invalid", value: "localhost", wantValid: false},
		{name: "empty is invalid", value: "", wantValid: false},
		{name: "garbage is invalid", value: "not-an-ip", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.value.Validate()
			if (err == nil) != tt.wantValid {
				t.Errorf("BindAddress(%q).Validate() error = %v, wantValid %v", tt.value, err, tt.wantValid)
			}
			if !tt.wantValid && !errors.Is(err, ErrInvalidBindAddress) {
				t.Errorf("error does not wrap ErrInvalidBindAddress: %v", err)
			}
		})
	}
}

func TestBindAddressIsAllInterfaces(t *testing.T) {
	t.Parallel()

	if !AllInterfaces.IsAllInterfaces() {
		t.Error("AllInterfaces.IsAllInterfaces() = false, want true")
	}
	if BindAddress("127.0.0.1").IsAllInterfaces() {
		t.Error(`BindAddress("127.0.0.1").IsAllInterfaces() = true, want false`)
	}
}
