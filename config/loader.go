/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Loader fills configuration objects. For every object defaults are set first,
// then values are read from the data provider (file or reader contents, environment variables and overrides).
type Loader struct {
	DataProvider DataProvider
	overrides    map[string]interface{}
}

// NewDefaultLoader returns a Loader backed by viper.
// If envVarsPrefix is not empty, values may also come from environment variables (e.g. PREFIX_REGISTRATION_MAXATTEMPTS).
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	if envVarsPrefix != "" {
		va.UseEnvVars(envVarsPrefix)
	}
	return NewLoader(va)
}

// NewLoader returns a Loader reading values from dp.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// WithOverrides makes the loader set the given values (full keys) on top of any other source.
// It's useful for command-line flags.
func (l *Loader) WithOverrides(values map[string]interface{}) *Loader {
	if l.overrides == nil {
		l.overrides = make(map[string]interface{}, len(values))
	}
	for key, val := range values {
		l.overrides[key] = val
	}
	return l
}

// DataTypeFromPath detects data type by the file extension (.yml, .yaml or .json).
func DataTypeFromPath(path string) (DataType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return DataTypeYAML, nil
	case ".json":
		return DataTypeJSON, nil
	}
	return "", fmt.Errorf("cannot detect data type of config file %q, supported extensions are .yml, .yaml and .json", path)
}

// LoadFromFile reads the file and fills configuration objects.
// If dataType is empty, it's detected by the file extension.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if dataType == "" {
		var err error
		if dataType, err = DataTypeFromPath(path); err != nil {
			return err
		}
	}
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader reads data from reader and fills configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadDefaults fills configuration objects without reading any file.
// Environment variables and overrides are still applied.
func (l *Loader) LoadDefaults(cfg Config, cfgs ...Config) error {
	return l.load(append([]Config{cfg}, cfgs...))
}

func (l *Loader) load(cfgs []Config) error {
	for key, val := range l.overrides {
		l.DataProvider.Set(key, val)
	}

	providers := make([]DataProvider, len(cfgs))
	for i, cfg := range cfgs {
		providers[i] = l.DataProvider
		if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
			providers[i] = NewKeyPrefixedDataProvider(l.DataProvider, kp.KeyPrefix())
		}
		cfg.SetProviderDefaults(providers[i])
	}
	for i, cfg := range cfgs {
		if err := cfg.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}
