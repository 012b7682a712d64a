/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// parseNonNegativeInt parses s as a plain integer. ok is false if s is not an integer at all.
func parseNonNegativeInt(s string) (n int64, ok bool, err error) {
	n, parseErr := strconv.ParseInt(s, 10, 64)
	if parseErr != nil {
		return 0, false, nil
	}
	if n < 0 {
		return 0, true, fmt.Errorf("negative value is not allowed: %d", n)
	}
	return n, true, nil
}

// decodeYAMLScalar passes a YAML scalar (number or string) to text unmarshalling.
func decodeYAMLScalar(value *yaml.Node, kind string, unmarshalText func([]byte) error) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid %s format: %v", kind, value.Value)
	}
	return unmarshalText([]byte(value.Value))
}

// TimeDuration is a time.Duration configured either as a string ("300ms", "1m30s") or as integer nanoseconds.
// Registration delays and status server timeouts use it.
type TimeDuration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	s := strings.Trim(strings.TrimSpace(string(text)), `"`)
	if n, ok, err := parseNonNegativeInt(s); ok {
		if err != nil {
			return err
		}
		*d = TimeDuration(n)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	return decodeYAMLScalar(value, "time duration", d.UnmarshalText)
}

// MarshalText implements encoding.TextMarshaler.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// ByteSize is a size in bytes configured either as an integer or as a string ("250M", "10MB", "10Mi").
// It's used for log file rotation.
type ByteSize uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.Trim(strings.TrimSpace(string(text)), `"`)
	if n, ok, err := parseNonNegativeInt(s); ok {
		if err != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	// bytefmt treats "M" and "MB" as powers of two already, so "Mi" just drops the "i".
	v := s
	if len(v) > 2 && strings.HasSuffix(v, "i") && strings.ContainsAny(v[len(v)-2:len(v)-1], "KMGTPE") {
		v = v[:len(v)-1]
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	*b = ByteSize(num)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	return decodeYAMLScalar(value, "byte size", b.UnmarshalText)
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}
