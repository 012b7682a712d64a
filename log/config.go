/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"github.com/acronis/go-regkit/config"
)

const cfgDefaultKeyPrefix = "log"

const (
	cfgKeyLevel          = "level"
	cfgKeyFormat         = "format"
	cfgKeyOutput         = "output"
	cfgKeyNoColor        = "noColor"
	cfgKeyAddCaller      = "addCaller"
	cfgKeyFilePath       = "file.path"
	cfgKeyFileMaxSize    = "file.maxSize"
	cfgKeyFileMaxBackups = "file.maxBackups"
	cfgKeyFileMaxAgeDays = "file.maxAgeDays"
	cfgKeyFileCompress   = "file.compress"
)

// Defaults and limits of the file output.
const (
	DefaultFileMaxSize    = 100 * 1024 * 1024
	MinFileMaxSize        = 1024 * 1024
	DefaultFileMaxBackups = 5
)

// Level is a logging level.
type Level string

// Logging levels.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is an encoding of log entries.
type Format string

// Logging formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is where log entries are written.
// Stderr is the default: an embedding host may own stdout.
type Output string

// Logging outputs.
const (
	OutputStderr Output = "stderr"
	OutputStdout Output = "stdout"
	OutputFile   Output = "file"
)

// Config is the "log" configuration section.
type Config struct {
	Level     Level      `mapstructure:"level" yaml:"level" json:"level"`
	Format    Format     `mapstructure:"format" yaml:"format" json:"format"`
	Output    Output     `mapstructure:"output" yaml:"output" json:"output"`
	NoColor   bool       `mapstructure:"noColor" yaml:"noColor" json:"noColor"`
	AddCaller bool       `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`
	File      FileConfig `mapstructure:"file" yaml:"file" json:"file"`

	keyPrefix string
}

// FileConfig configures the file output rotated by lumberjack.
// Path may contain {{pid}} and {{starttime}} placeholders.
type FileConfig struct {
	Path       string          `mapstructure:"path" yaml:"path" json:"path"`
	MaxSize    config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	Compress   bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig returns a Config to be filled by config.Loader. If keyPrefix is empty, "log" is used.
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: OutputStderr,
		File:   FileConfig{MaxSize: DefaultFileMaxSize, MaxBackups: DefaultFileMaxBackups},
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
	dp.SetDefault(cfgKeyLevel, string(LevelInfo))
	dp.SetDefault(cfgKeyFormat, string(FormatJSON))
	dp.SetDefault(cfgKeyOutput, string(OutputStderr))
	dp.SetDefault(cfgKeyFileMaxSize, config.ByteSize(DefaultFileMaxSize).String())
	dp.SetDefault(cfgKeyFileMaxBackups, DefaultFileMaxBackups)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Level, err = getEnum(dp, cfgKeyLevel, LevelError, LevelWarn, LevelInfo, LevelDebug); err != nil {
		return err
	}
	if c.Format, err = getEnum(dp, cfgKeyFormat, FormatJSON, FormatText); err != nil {
		return err
	}
	if c.Output, err = getEnum(dp, cfgKeyOutput, OutputStderr, OutputStdout, OutputFile); err != nil {
		return err
	}
	if c.NoColor, err = dp.GetBool(cfgKeyNoColor); err != nil {
		return err
	}
	if c.AddCaller, err = dp.GetBool(cfgKeyAddCaller); err != nil {
		return err
	}
	return c.setFile(dp)
}

func (c *Config) setFile(dp config.DataProvider) (err error) {
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}
	if c.File.MaxSize, err = dp.GetByteSize(cfgKeyFileMaxSize); err != nil {
		return err
	}
	if c.File.MaxSize < MinFileMaxSize {
		return dp.WrapKeyErr(cfgKeyFileMaxSize, fmt.Errorf("should be >= %s", config.ByteSize(MinFileMaxSize)))
	}
	if c.File.MaxBackups, err = config.GetIntAtLeast(dp, cfgKeyFileMaxBackups, 1); err != nil {
		return err
	}
	if c.File.MaxAgeDays, err = config.GetIntAtLeast(dp, cfgKeyFileMaxAgeDays, 0); err != nil {
		return err
	}
	c.File.Compress, err = dp.GetBool(cfgKeyFileCompress)
	return err
}

// getEnum reads a case-insensitive value that must be one of allowed.
func getEnum[T ~string](dp config.DataProvider, key string, allowed ...T) (T, error) {
	set := make([]string, len(allowed))
	for i, v := range allowed {
		set[i] = string(v)
	}
	s, err := dp.GetStringFromSet(key, set, true)
	if err != nil {
		return "", err
	}
	return T(strings.ToLower(s)), nil
}
