// Package config loads carbonrepo settings from defaults, an optional YAML
// file, a .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"github.com/ochairo/carbonrepo/internal/external-adapters/yaml"
)

const (
	// AppName names the XDG subdirectories used for config, state and logs
	AppName = "carbonrepo"

	DefaultStorePath        = "config.json"
	DefaultAPIBase          = "https://api.github.com"
	DefaultWebBase          = "https://github.com"
	DefaultUserAgent        = "carbonrepo/1.0"
	DefaultTimeout          = 30 * time.Second
	DefaultCapacity         = 8
	DefaultMaxConns         = 16
	DefaultInteractivePace  = 50 * time.Millisecond
	DefaultContributorLimit = 30
	DefaultOutputPath       = "repos-gen2.json"
)

// Config holds the resolved settings
type Config struct {
	StorePath        string
	Token            string
	APIBase          string
	WebBase          string
	UserAgent        string
	Timeout          time.Duration
	Capacity         int
	MaxConns         int
	CheckPace        time.Duration
	ContributorLimit int
	OutputPath       string
	Keyring          string
	KeyIDs           []string
	MetricsFile      string

	// Source is the config file that was applied, if any
	Source string
}

// Options controls where Load looks for settings. Empty fields select the
// defaults: the XDG config file, ./.env and the process environment.
type Options struct {
	ConfigFile string
	EnvFile    string
	LookupEnv  func(string) (string, bool)
}

// Defaults returns the built-in settings
func Defaults() *Config {
	return &Config{
		StorePath:        DefaultStorePath,
		APIBase:          DefaultAPIBase,
		WebBase:          DefaultWebBase,
		UserAgent:        DefaultUserAgent,
		Timeout:          DefaultTimeout,
		Capacity:         DefaultCapacity,
		MaxConns:         DefaultMaxConns,
		ContributorLimit: DefaultContributorLimit,
		OutputPath:       DefaultOutputPath,
	}
}

// DefaultConfigFile returns $XDG_CONFIG_HOME/carbonrepo/config.yml
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yml")
}

// Load resolves the configuration. An explicit ConfigFile must exist; the
// default XDG file and the .env file are optional.
func Load(opts Options) (*Config, error) {
	cfg := Defaults()

	path, explicit := opts.ConfigFile, opts.ConfigFile != ""
	if !explicit {
		path = DefaultConfigFile()
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := readDotenv(envFile)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(layered(lookup, dotenv))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}

	file, err := yaml.NewConfigParser().ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c.Source = path

	setString(&c.StorePath, file.Store)
	setString(&c.Token, file.Token)
	setString(&c.APIBase, file.APIBase)
	setString(&c.WebBase, file.WebBase)
	setString(&c.UserAgent, file.UserAgent)
	setString(&c.OutputPath, file.Output)
	setString(&c.Keyring, file.Keyring)
	setString(&c.MetricsFile, file.MetricsFile)
	if file.Timeout > 0 {
		c.Timeout = file.Timeout
	}
	if file.Capacity > 0 {
		c.Capacity = file.Capacity
	}
	if file.MaxConns > 0 {
		c.MaxConns = file.MaxConns
	}
	if file.CheckPace > 0 {
		c.CheckPace = file.CheckPace
	}
	if file.ContributorLimit > 0 {
		c.ContributorLimit = file.ContributorLimit
	}
	if len(file.KeyIDs) > 0 {
		c.KeyIDs = file.KeyIDs
	}
	return nil
}

// readDotenv reads a .env file without touching the process environment
func readDotenv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// layered gives the real environment precedence over .env values, the
// same way godotenv.Load never overrides variables that are already set
func layered(lookup func(string) (string, bool), dotenv map[string]string) func(string) string {
	return func(key string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return dotenv[key]
	}
}

func (c *Config) applyEnv(get func(string) string) {
	if token := get("GITHUB_TOKEN"); token != "" {
		c.Token = token
	} else if token := get("GH_TOKEN"); token != "" {
		c.Token = token
	}
	setString(&c.StorePath, get("CARBONREPO_STORE"))
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive, got %d", c.MaxConns)
	}
	if c.MaxConns < c.Capacity {
		return fmt.Errorf("max connections (%d) must not be below capacity (%d)", c.MaxConns, c.Capacity)
	}
	if c.ContributorLimit <= 0 {
		return fmt.Errorf("contributor limit must be positive, got %d", c.ContributorLimit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// WithInteractivePace returns a copy paced for an interactive front end
func (c *Config) WithInteractivePace() *Config {
	cp := *c
	if cp.CheckPace == 0 {
		cp.CheckPace = DefaultInteractivePace
	}
	return &cp
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
