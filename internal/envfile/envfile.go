// SPDX-License-Identifier: MPL-2.0

// Package envfile loads the KEY=VALUE settings file mounted into the lab
// container. The file is optional: an absent file yields empty settings and
// a notice, never an error. Malformed lines are skipped and reported as
// problems so a typo in a mounted file cannot keep the lab from starting.
package envfile

import (
	"fmt"
	"os"
	"strings"
)

type (
	// Settings holds parsed key/value pairs in file order.
	// Duplicate keys keep their first position but take the last value.
	Settings struct {
		keys   []string
		values map[string]string
	}

	// Problem describes a malformed line that was skipped during parsing.
	Problem struct {
		// Line is the 1-based line number in the source file.
		Line int
		// Reason says why the line was skipped.
		Reason string
	}

	// Result is the outcome of loading a settings file.
	Result struct {
		// Settings holds the parsed pairs (empty when the file is absent).
		Settings Settings
		// Found reports whether the file existed.
		Found bool
		// Problems lists malformed lines that were skipped.
		Problems []Problem
	}
)

// NewSettings returns an empty Settings.
func NewSettings() Settings {
	return Settings{values: make(map[string]string)}
}

// Set stores a key/value pair. A repeated key keeps its original position
// and takes the new value.
func (s *Settings) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the value for key and whether it is present.
func (s *Settings) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in file order.
func (s *Settings) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of distinct keys.
func (s *Settings) Len() int { return len(s.keys) }

// Apply overlays the settings onto an environment slice. Entries are
// appended in file order; os/exec keeps the last occurrence of a key, so
// appended settings win over inherited values.
func (s *Settings) Apply(env []string) []string {
	out := make([]string, 0, len(env)+len(s.keys))
	out = append(out, env...)
	for _, k := range s.keys {
		out = append(out, k+"="+s.values[k])
	}
	return out
}

// Load reads and parses the settings file at path.
//
// An absent file is not an error: the result has Found=false and empty
// settings, and the caller is expected to log a notice. Any other read
// failure is an error.
func Load(path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{Settings: NewSettings(), Found: false}, nil
		}
		return nil, fmt.Errorf("failed to read settings file %q: %w", path, err)
	}

	settings, problems := Parse(content)
	return &Result{Settings: settings, Found: true, Problems: problems}, nil
}

// Parse parses KEY=VALUE content. Supported format:
//   - Lines starting with # are comments
//   - Empty lines are ignored
//   - KEY=value (unquoted; trailing " # comment" stripped)
//   - KEY="value" (double-quoted, escape sequences: \n, \r, \t, \\, \", \$)
//   - KEY='value' (single-quoted, literal - no escape processing)
//   - export KEY=value (export prefix is optional and ignored)
//   - KEY= (empty value)
//   - CRLF line endings are tolerated
//
// Malformed lines never abort the parse; each is skipped and recorded as a
// Problem. Duplicate keys take the last value.
func Parse(content []byte) (Settings, []Problem) {
	settings := NewSettings()
	var problems []Problem

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		lineNum := i + 1

		line = strings.TrimSuffix(line, "\r")
		line = strings.TrimSpace(line)

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimPrefix(line, "export ")
		line = strings.TrimSpace(line)

		key, value, found := strings.Cut(line, "=")
		if !found {
			problems = append(problems, Problem{Line: lineNum, Reason: "missing '='"})
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			problems = append(problems, Problem{Line: lineNum, Reason: "empty variable name"})
			continue
		}
		if !validKey(key) {
			problems = append(problems, Problem{Line: lineNum, Reason: fmt.Sprintf("invalid variable name %q", key)})
			continue
		}

		parsedValue, err := parseValue(value)
		if err != nil {
			problems = append(problems, Problem{Line: lineNum, Reason: err.Error()})
			continue
		}

		settings.Set(key, parsedValue)
	}

	return settings, problems
}

// validKey reports whether key matches [A-Za-z_][A-Za-z0-9_]*.
func validKey(key string) bool {
	for i, c := range key {
		switch {
		case c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z'):
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// parseValue parses a value, handling quoting and escape sequences.
func parseValue(value string) (string, error) {
	value = strings.TrimSpace(value)

	if value == "" {
		return "", nil
	}

	if value[0] == '"' {
		if len(value) < 2 || value[len(value)-1] != '"' {
			return "", fmt.Errorf("unterminated double quote")
		}
		return parseDoubleQuoted(value[1 : len(value)-1]), nil
	}
	if value[0] == '\'' {
		if len(value) < 2 || value[len(value)-1] != '\'' {
			return "", fmt.Errorf("unterminated single quote")
		}
		// Single-quoted: literal value, no escape processing
		return value[1 : len(value)-1], nil
	}

	// Unquoted: strip inline comments
	if idx := strings.Index(value, " #"); idx != -1 {
		value = strings.TrimSpace(value[:idx])
	}

	return value, nil
}

// parseDoubleQuoted processes escape sequences in a double-quoted value.
func parseDoubleQuoted(value string) string {
	var result strings.Builder
	result.Grow(len(value))

	i := 0
	for i < len(value) {
		if value[i] == '\\' && i+1 < len(value) {
			next := value[i+1]
			switch next {
			case 'n':
				result.WriteByte('\n')
			case 'r':
				result.WriteByte('\r')
			case 't':
				result.WriteByte('\t')
			case '\\':
				result.WriteByte('\\')
			case '"':
				result.WriteByte('"')
			case '$':
				result.WriteByte('$')
			default:
				// Unknown escape - keep both characters
				result.WriteByte('\\')
				result.WriteByte(next)
			}
			i += 2
		} else {
			result.WriteByte(value[i])
			i++
		}
	}

	return result.String()
}
