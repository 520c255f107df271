// Package config loads the kernel emulation settings.
//
// Settings come from three layers, later layers winning:
//  1. Default()
//  2. A YAML file (Load)
//  3. Environment variables (ApplyEnv): KERNELSYNC_VERBOSE, KERNELSYNC_FIRMWARE
//
// Example file:
//
//	firmware: v3.60.0
//	verbose: true
//	main_thread_priority: 160
//	stress:
//	  threads: 8
//	  iterations: 1000
//	  wait_timeout: 2s
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Guest priority bounds. Lower values run first.
const (
	MinPriority = 0
	MaxPriority = 255
)

// Config is the complete emulator kernel configuration.
type Config struct {
	// Firmware is the emulated system software version as a semantic
	// version ("v3.60.0"). A missing "v" prefix is accepted.
	Firmware string `yaml:"firmware"`

	// Verbose enables registry diagnostics on stderr.
	Verbose bool `yaml:"verbose"`

	// MainThreadPriority is the priority of the first guest thread.
	MainThreadPriority int32 `yaml:"main_thread_priority"`

	// Stress configures the kernelsync stress workload.
	Stress Stress `yaml:"stress"`
}

// Stress configures the concurrent workload run by `kernelsync stress`.
type Stress struct {
	Threads     int           `yaml:"threads"`
	Iterations  int           `yaml:"iterations"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Firmware:           "v3.60.0",
		MainThreadPriority: 160,
		Stress: Stress{
			Threads:     8,
			Iterations:  1000,
			WaitTimeout: 2 * time.Second,
		},
	}
}

// Load reads a YAML file on top of Default, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("KERNELSYNC_VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KERNELSYNC_VERBOSE: %w", err)
		}
		c.Verbose = b
	}
	if v, ok := os.LookupEnv("KERNELSYNC_FIRMWARE"); ok {
		c.Firmware = v
	}
	return nil
}

// Validate checks every field and canonicalises Firmware.
func (c *Config) Validate() error {
	fw := c.Firmware
	if fw == "" {
		return errors.New("firmware version is required")
	}
	if fw[0] != 'v' {
		fw = "v" + fw
	}
	if !semver.IsValid(fw) {
		return fmt.Errorf("firmware %q is not a semantic version", c.Firmware)
	}
	c.Firmware = semver.Canonical(fw)

	if c.MainThreadPriority < MinPriority || c.MainThreadPriority > MaxPriority {
		return fmt.Errorf("main_thread_priority %d out of range [%d, %d]",
			c.MainThreadPriority, MinPriority, MaxPriority)
	}
	if c.Stress.Threads <= 0 {
		return errors.New("stress.threads must be positive")
	}
	if c.Stress.Iterations <= 0 {
		return errors.New("stress.iterations must be positive")
	}
	if c.Stress.WaitTimeout < 0 {
		return errors.New("stress.wait_timeout must not be negative")
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return data, nil
}
