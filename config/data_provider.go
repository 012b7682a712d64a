/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DataType is a format of configuration data.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataProvider gives typed access to configuration values by key (e.g. "registration.maxAttempts").
// Getters return a zero value without error for a key that is missing and has no default.
type DataProvider interface {
	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error

	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetString(key string) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetDuration(key string) (time.Duration, error)
	GetByteSize(key string) (ByteSize, error)

	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error

	WrapKeyErr(key string, err error) error
}

// DecoderConfigOption tunes mapstructure decoding in UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WithTextUnmarshalling makes UnmarshalKey decode strings into types implementing encoding.TextUnmarshaler
// (regcoord.TimingClass, TimeDuration, ByteSize) and into time.Duration.
func WithTextUnmarshalling() DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}
}

// WrapKeyErr prefixes err with the key it occurred for.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

// GetPositiveDuration reads a duration that must be greater than zero (delays, polling intervals).
func GetPositiveDuration(dp DataProvider, key string) (time.Duration, error) {
	d, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("should be > 0"))
	}
	return d, nil
}

// GetNonNegativeDuration reads a duration where zero means "not limited" (e.g. server timeouts).
func GetNonNegativeDuration(dp DataProvider, key string) (time.Duration, error) {
	d, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("cannot be negative"))
	}
	return d, nil
}

// GetIntAtLeast reads an integer that must be >= min (attempt ceilings, backup counts).
func GetIntAtLeast(dp DataProvider, key string, min int) (int, error) {
	n, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if n < min {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("should be >= %d", min))
	}
	return n, nil
}
