/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package statushttp

import (
	"fmt"
	"time"

	"github.com/acronis/go-regkit/config"
)

const cfgDefaultKeyPrefix = "status"

const (
	cfgKeyEnabled             = "enabled"
	cfgKeyAddress             = "address"
	cfgKeyTimeoutsWrite       = "timeouts.write"
	cfgKeyTimeoutsRead        = "timeouts.read"
	cfgKeyTimeoutsReadHeader  = "timeouts.readHeader"
	cfgKeyTimeoutsIdle        = "timeouts.idle"
	cfgKeyTimeoutsShutdown    = "timeouts.shutdown"
	cfgKeyLogExcludedEndpoint = "log.excludedEndpoints"
)

const (
	defaultAddress            = "127.0.0.1:9090"
	defaultTimeoutsWrite      = time.Second * 15
	defaultTimeoutsRead       = time.Second * 15
	defaultTimeoutsReadHeader = time.Second * 10
	defaultTimeoutsIdle       = time.Minute
	defaultTimeoutsShutdown   = time.Second * 5
)

// Config represents a set of configuration parameters for the status server.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// TimeoutsConfig represents a set of configuration parameters for the server relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// LogConfig represents a set of configuration parameters for the server relating to logging.
type LogConfig struct {
	// ExcludedEndpoints are not logged when served successfully (e.g. frequently scraped /metrics).
	ExcludedEndpoints []string `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
}

// NewConfig creates a new instance of the Config that is read under keyPrefix ("status" if empty).
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Address: defaultAddress,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(defaultTimeoutsWrite),
			Read:       config.TimeDuration(defaultTimeoutsRead),
			ReadHeader: config.TimeDuration(defaultTimeoutsReadHeader),
			Idle:       config.TimeDuration(defaultTimeoutsIdle),
			Shutdown:   config.TimeDuration(defaultTimeoutsShutdown),
		},
		Log: LogConfig{ExcludedEndpoints: []string{metricsEndpoint}},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the status server in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyAddress, defaultAddress)
	dp.SetDefault(cfgKeyTimeoutsWrite, defaultTimeoutsWrite)
	dp.SetDefault(cfgKeyTimeoutsRead, defaultTimeoutsRead)
	dp.SetDefault(cfgKeyTimeoutsReadHeader, defaultTimeoutsReadHeader)
	dp.SetDefault(cfgKeyTimeoutsIdle, defaultTimeoutsIdle)
	dp.SetDefault(cfgKeyTimeoutsShutdown, defaultTimeoutsShutdown)
	dp.SetDefault(cfgKeyLogExcludedEndpoint, []string{metricsEndpoint})
}

// Set sets the status server configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Enabled && c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("cannot be empty"))
	}

	timeouts := []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyTimeoutsWrite, &c.Timeouts.Write},
		{cfgKeyTimeoutsRead, &c.Timeouts.Read},
		{cfgKeyTimeoutsReadHeader, &c.Timeouts.ReadHeader},
		{cfgKeyTimeoutsIdle, &c.Timeouts.Idle},
		{cfgKeyTimeoutsShutdown, &c.Timeouts.Shutdown},
	}
	for _, t := range timeouts {
		var d time.Duration
		if d, err = config.GetNonNegativeDuration(dp, t.key); err != nil {
			return err
		}
		*t.dst = config.TimeDuration(d)
	}

	if c.Log.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcludedEndpoint); err != nil {
		return err
	}
	return nil
}
