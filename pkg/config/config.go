package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/NH5pml30/virtual-machines/pkg/logflags"
)

const (
	configDir       string = "memprobe"
	configDirHidden string = ".memprobe"
	configFile      string = "config.yml"
)

const (
	defaultRandomProbes      = 10
	defaultBalanceIterations = 10000
	defaultShmDir            = "/dev/shm"
)

// Values accepted by the color option.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// RandomProbes is the number of random addresses the self-test probes.
	RandomProbes int `yaml:"random-probes,omitempty"`
	// RandomSeed seeds the generator for the random addresses. It defaults
	// to 0, so unless it is set every run reads the same addresses.
	RandomSeed int64 `yaml:"random-seed,omitempty"`
	// BalanceIterations is the number of probes issued by the
	// install/restore balance scenario.
	BalanceIterations int `yaml:"balance-iterations,omitempty"`
	// ShmDir is the directory where shared memory objects are created for
	// the bus error scenario.
	ShmDir string `yaml:"shm-dir,omitempty"`
	// Color selects when the summary line is colored: auto, always or never.
	Color string `yaml:"color,omitempty"`
}

// Default returns the configuration used when no option is set.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.RandomProbes <= 0 {
		c.RandomProbes = defaultRandomProbes
	}
	if c.BalanceIterations <= 0 {
		c.BalanceIterations = defaultBalanceIterations
	}
	if c.ShmDir == "" {
		c.ShmDir = defaultShmDir
	}
	if c.Color == "" {
		c.Color = ColorAuto
	}
}

// Validate reports options holding values that are not understood.
func (c *Config) Validate() error {
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("invalid color %q (must be auto, always or never)", c.Color)
	}
	return nil
}

// LoadConfig attempts to populate a Config object from the config.yml
// file, creating a default one if none exists. Errors are logged and the
// default configuration is returned.
func LoadConfig() *Config {
	logger := logflags.ConfigLogger()
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		logger.Errorf("Unable to get config file path: %v.", err)
		return Default()
	}
	c, err := LoadConfigFrom(fullConfigFile)
	if err != nil {
		logger.Errorf("%v", err)
		return Default()
	}
	return c
}

// LoadConfigFrom reads the configuration stored at path. If the file does
// not exist it is created with every option commented out.
func LoadConfigFrom(path string) (*Config, error) {
	logger := logflags.ConfigLogger()
	data, err := ioutil.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if logflags.Config() {
			logger.Debugf("creating default config file %s", path)
		}
		if err := createDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("error creating default config file: %v", err)
		}
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode config file: %v", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	if logflags.Config() {
		logger.WithField("path", path).Debugf("loaded config %+v", c)
	}
	return &c, nil
}

func createDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %v", err)
	}
	defer f.Close()
	if err := writeDefaultConfig(f); err != nil {
		return fmt.Errorf("unable to write default configuration: %v", err)
	}
	return nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for memprobe.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Number of random addresses probed by 'memprobe selftest'.
# random-probes: 10

# Seed for the random addresses. The same seed yields the same addresses, and
# the default of 0 is fixed: every run reads the same addresses unless this is
# changed.
# random-seed: 0

# Number of probes issued when checking that fault handling is restored.
# balance-iterations: 10000

# Directory used to create the shared memory object for the bus error check.
# shm-dir: /dev/shm

# When to color the self-test summary: auto, always or never.
# color: auto
`)
	return err
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDir, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
