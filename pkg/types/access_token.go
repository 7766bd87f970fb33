// SPDX-License-Identifier: MPL-2.0

package types

// AccessToken is the shared secret the notebook server requires from
// browsers. It is sourced from the environment at boot; an empty token is a
// legal (if loud) configuration meaning open access.
type AccessToken string

// IsZero reports whether the token is empty.
func (t AccessToken) IsZero() bool { return t == "" }

// Reveal returns the raw token value for writing into the runtime config.
func (t AccessToken) Reveal() string { return string(t) }

// String redacts the token so it never leaks through logs or error chains.
func (t AccessToken) String() string {
	if t.IsZero() {
		return ""
	}
	return "[redacted]"
}
