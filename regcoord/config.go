/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import (
	"fmt"
	"time"

	"github.com/acronis/go-regkit/config"
	"github.com/acronis/go-regkit/retry"
)

const cfgDefaultKeyPrefix = "registration"

const (
	cfgKeyBaseDelay         = "baseDelay"
	cfgKeyMaxDelay          = "maxDelay"
	cfgKeyMaxAttempts       = "maxAttempts"
	cfgKeyContinueOnFailure = "continueOnFailure"
)

// Default values.
const (
	DefaultBaseDelay         = 300 * time.Millisecond
	DefaultMaxDelay          = 5 * time.Second
	DefaultMaxAttempts       = 5
	DefaultContinueOnFailure = true
)

// Config represents the retry policy of the coordinator.
// It can be loaded with config.Loader (under the "registration" key by default)
// or decoded directly from YAML/JSON.
type Config struct {
	// BaseDelay is the delay before the second attempt of a failed unit.
	BaseDelay config.TimeDuration `mapstructure:"baseDelay" yaml:"baseDelay" json:"baseDelay"`

	// MaxDelay caps the delay between attempts.
	MaxDelay config.TimeDuration `mapstructure:"maxDelay" yaml:"maxDelay" json:"maxDelay"`

	// MaxAttempts is the total number of attempts per unit (the first one included).
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// ContinueOnFailure defines whether other units keep being registered after one unit exhausted its attempts.
	// If false, the coordinator aborts.
	ContinueOnFailure bool `mapstructure:"continueOnFailure" yaml:"continueOnFailure" json:"continueOnFailure"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config that is read under keyPrefix ("registration" if empty).
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		BaseDelay:         config.TimeDuration(DefaultBaseDelay),
		MaxDelay:          config.TimeDuration(DefaultMaxDelay),
		MaxAttempts:       DefaultMaxAttempts,
		ContinueOnFailure: DefaultContinueOnFailure,
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBaseDelay, DefaultBaseDelay.String())
	dp.SetDefault(cfgKeyMaxDelay, DefaultMaxDelay.String())
	dp.SetDefault(cfgKeyMaxAttempts, DefaultMaxAttempts)
	dp.SetDefault(cfgKeyContinueOnFailure, DefaultContinueOnFailure)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	baseDelay, err := config.GetPositiveDuration(dp, cfgKeyBaseDelay)
	if err != nil {
		return err
	}
	maxDelay, err := dp.GetDuration(cfgKeyMaxDelay)
	if err != nil {
		return err
	}
	if maxDelay < baseDelay {
		return dp.WrapKeyErr(cfgKeyMaxDelay, fmt.Errorf("should be >= %s (%s)", cfgKeyBaseDelay, baseDelay))
	}
	c.BaseDelay, c.MaxDelay = config.TimeDuration(baseDelay), config.TimeDuration(maxDelay)

	if c.MaxAttempts, err = config.GetIntAtLeast(dp, cfgKeyMaxAttempts, 1); err != nil {
		return err
	}
	if c.ContinueOnFailure, err = dp.GetBool(cfgKeyContinueOnFailure); err != nil {
		return err
	}
	return nil
}

// Validate checks the values of a Config that was filled without config.Loader.
func (c *Config) Validate() error {
	if c.BaseDelay <= 0 {
		return fmt.Errorf("%s: should be > 0", cfgKeyBaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("%s: should be >= %s (%s)", cfgKeyMaxDelay, cfgKeyBaseDelay, c.BaseDelay)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%s: should be >= 1", cfgKeyMaxAttempts)
	}
	return nil
}

// BackoffPolicy returns the per-unit retry policy described by the config.
func (c *Config) BackoffPolicy() retry.DoublingBackoffPolicy {
	return retry.NewDoublingBackoffPolicy(time.Duration(c.BaseDelay), time.Duration(c.MaxDelay), c.MaxAttempts)
}
