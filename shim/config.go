package shim

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDrainTimeout bounds how long Close waits for an in-flight
	// prefetch.
	DefaultDrainTimeout = 5 * time.Second

	// EnvPrefetch overrides ConfigValues.Prefetch in ConfigFromEnv.
	EnvPrefetch = "MBSHIM_PREFETCH"

	// EnvDrainTimeout overrides ConfigValues.DrainTimeout in ConfigFromEnv.
	EnvDrainTimeout = "MBSHIM_DRAIN_TIMEOUT"
)

// Config retrieves the config values used by ReaderShim. If these values are
// constant, NewConstantConfig can be used to create an implementation of the
// interface.
//
// The values are read once per minibatch loop start, so a DynamicConfig can
// switch between asynchronous and synchronous prefetching between epochs.
type Config interface {
	// Get returns the values for configuration.
	//
	// If the config values may be modified while a loop runs, Get must
	// properly handle concurrency issues.
	Get() ConfigValues
}

// ConfigValues is a struct that contains the ReaderShim config values.
type ConfigValues struct {
	// Prefetch runs reads on a background goroutine so that the next
	// minibatch is prepared while the caller works on the current one. When
	// false every read runs inline, which makes the loop easier to debug.
	Prefetch bool `json:"prefetch" yaml:"prefetch"`

	// DrainTimeout bounds how long Close waits for an in-flight prefetch. A
	// zero or negative value uses DefaultDrainTimeout.
	DrainTimeout time.Duration `json:"drainTimeout" yaml:"drainTimeout"`
}

// DefaultConfigValues returns the values used when no config is given.
func DefaultConfigValues() ConfigValues {
	return ConfigValues{
		Prefetch:     true,
		DrainTimeout: DefaultDrainTimeout,
	}
}

func (v ConfigValues) fixed() ConfigValues {
	if v.DrainTimeout <= 0 {
		v.DrainTimeout = DefaultDrainTimeout
	}
	return v
}

// NewConstantConfig returns a Config with constant values. If values is nil,
// DefaultConfigValues is used.
func NewConstantConfig(values *ConfigValues) *ConstantConfig {
	if values == nil {
		return &ConstantConfig{values: DefaultConfigValues()}
	}

	return &ConstantConfig{
		values: *values,
	}
}

// ConstantConfig is a Config with constant values. Create one with
// NewConstantConfig.
type ConstantConfig struct {
	values ConfigValues
}

// Get implements the Config interface.
func (c *ConstantConfig) Get() ConfigValues {
	return c.values
}

// NewDynamicConfig creates a configuration that can be adjusted at runtime.
// If values is nil, DefaultConfigValues is used.
func NewDynamicConfig(values *ConfigValues) *DynamicConfig {
	if values == nil {
		v := DefaultConfigValues()
		values = &v
	}

	return &DynamicConfig{
		prefetch:     values.Prefetch,
		drainTimeout: values.DrainTimeout,
	}
}

// DynamicConfig implements the Config interface with values that can be
// modified at runtime. It is safe for concurrent use.
type DynamicConfig struct {
	mu           sync.RWMutex
	prefetch     bool
	drainTimeout time.Duration
}

// Get implements the Config interface.
func (c *DynamicConfig) Get() ConfigValues {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConfigValues{
		Prefetch:     c.prefetch,
		DrainTimeout: c.drainTimeout,
	}
}

// UpdatePrefetch switches prefetching on or off for subsequent loops.
func (c *DynamicConfig) UpdatePrefetch(prefetch bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetch
}

// UpdateDrainTimeout changes the teardown bound.
func (c *DynamicConfig) UpdateDrainTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainTimeout = timeout
}

// Update replaces all configuration values at once.
func (c *DynamicConfig) Update(values ConfigValues) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = values.Prefetch
	c.drainTimeout = values.DrainTimeout
}

// LoadConfigFile reads ConfigValues from a YAML file. Keys missing from the
// file keep their DefaultConfigValues.
//
// Example file:
//
//	prefetch: false
//	drainTimeout: 10s
func LoadConfigFile(path string) (ConfigValues, error) {
	values := DefaultConfigValues()

	data, err := os.ReadFile(path)
	if err != nil {
		return values, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return values, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return values, nil
}

// ConfigFromEnv returns DefaultConfigValues overridden by the MBSHIM_PREFETCH
// and MBSHIM_DRAIN_TIMEOUT environment variables.
func ConfigFromEnv() (ConfigValues, error) {
	return ApplyEnv(DefaultConfigValues())
}

// ApplyEnv overrides values with the environment variables that are set.
func ApplyEnv(values ConfigValues) (ConfigValues, error) {
	if s := envVar(EnvPrefetch); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return values, fmt.Errorf("invalid %s: %w", EnvPrefetch, err)
		}
		values.Prefetch = b
	}

	if s := envVar(EnvDrainTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			// Allow a plain number of seconds.
			secs, serr := strconv.ParseInt(s, 10, 64)
			if serr != nil {
				return values, fmt.Errorf("invalid %s: %w", EnvDrainTimeout, err)
			}
			d = time.Duration(secs) * time.Second
		}
		values.DrainTimeout = d
	}

	return values, nil
}

// envVar returns an environment variable stripped of spaces and quotes.
func envVar(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
