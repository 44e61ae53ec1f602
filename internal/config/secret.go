// internal/config/secret.go
package config

import "encoding/json"

// redactedToken is what every marshaled or formatted Secret shows in place
// of its value.
const redactedToken = "[REDACTED]"

// Secret holds credentials loaded from config: database DSNs, neo4j and S3
// passwords. Formatting and every marshal path emit a redaction token so a
// dumped config or an error chain cannot leak the value. Only Value returns
// the real string; call it at the point of use and nowhere else.
type Secret string

// Value returns the raw secret.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a value is present.
func (s Secret) IsSet() bool {
	return s != ""
}

// String implements fmt.Stringer, redacted. Empty secrets stay empty so an
// unset field reads as unset, not as a hidden value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedToken
}

// GoString implements fmt.GoStringer, so %#v is redacted too.
func (s Secret) GoString() string {
	return "Secret(" + redactedToken + ")"
}

// MarshalJSON implements json.Marshaler, redacted.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// MarshalText implements encoding.TextMarshaler, redacted.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarshalYAML implements yaml.Marshaler, redacted.
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Load paths accept the
// raw value.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}
