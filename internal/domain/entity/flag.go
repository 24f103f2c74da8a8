package entity

import "fmt"

// Flag is the two-valued switch the configuration engine uses for reserve
// capabilities. Any other value is invalid and must never reach the encoder.
type Flag string

const (
	FlagEnabled  Flag = "ENABLED"
	FlagDisabled Flag = "DISABLED"
)

// ParseFlag converts a raw document value into a Flag.
func ParseFlag(s string) (Flag, error) {
	f := Flag(s)
	if !f.Valid() {
		return "", fmt.Errorf("invalid flag %q: expected %s or %s", s, FlagEnabled, FlagDisabled)
	}
	return f, nil
}

// Valid reports whether f is one of the two engine values.
func (f Flag) Valid() bool {
	return f == FlagEnabled || f == FlagDisabled
}

// Enabled reports whether the flag is switched on.
func (f Flag) Enabled() bool {
	return f == FlagEnabled
}

// EngineValue returns the numeric EngineFlags value (ENABLED=1, DISABLED=0).
func (f Flag) EngineValue() uint64 {
	if f == FlagEnabled {
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler. Invalid flags do not encode.
func (f Flag) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid flag %q", string(f))
	}
	return []byte(f), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects anything but
// ENABLED or DISABLED.
func (f *Flag) UnmarshalText(text []byte) error {
	parsed, err := ParseFlag(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
