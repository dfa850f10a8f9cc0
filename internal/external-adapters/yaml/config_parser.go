// Package yaml provides YAML-based configuration file parsing.
package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlConfig represents the raw YAML structure
type yamlConfig struct {
	Store            string          `yaml:"store"`
	Token            string          `yaml:"token"`
	GitHub           yamlGitHub      `yaml:"github"`
	Concurrency      yamlConcurrency `yaml:"concurrency"`
	CheckPace        string          `yaml:"check_pace"`
	ContributorLimit int             `yaml:"contributor_limit"`
	Output           string          `yaml:"output"`
	Signatures       yamlSignatures  `yaml:"signatures"`
	MetricsFile      string          `yaml:"metrics_file"`
}

type yamlGitHub struct {
	APIBase   string `yaml:"api_base"`
	WebBase   string `yaml:"web_base"`
	UserAgent string `yaml:"user_agent"`
	Timeout   string `yaml:"timeout"`
}

type yamlConcurrency struct {
	Capacity int `yaml:"capacity"`
	MaxConns int `yaml:"max_conns"`
}

type yamlSignatures struct {
	Keyring string   `yaml:"keyring"`
	KeyIDs  []string `yaml:"key_ids"`
}

// ConfigFile holds the settings read from a config file. Zero values mean
// the key was not set and the caller keeps its own default.
type ConfigFile struct {
	Store            string
	Token            string
	APIBase          string
	WebBase          string
	UserAgent        string
	Timeout          time.Duration
	Capacity         int
	MaxConns         int
	CheckPace        time.Duration
	ContributorLimit int
	Output           string
	Keyring          string
	KeyIDs           []string
	MetricsFile      string
}

// ConfigParser parses carbonrepo config files
type ConfigParser struct{}

// NewConfigParser creates a new config parser
func NewConfigParser() *ConfigParser {
	return &ConfigParser{}
}

// ParseFile parses the config file at filePath
func (p *ConfigParser) ParseFile(filePath string) (*ConfigFile, error) {
	//nolint:gosec // G304: filePath comes from the --config flag or the XDG config home
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return p.Parse(data)
}

// Parse parses YAML bytes into a ConfigFile. Unknown keys are rejected so
// that typos do not silently fall back to defaults.
func (p *ConfigParser) Parse(data []byte) (*ConfigFile, error) {
	var raw yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	timeout, err := parseDuration("github.timeout", raw.GitHub.Timeout)
	if err != nil {
		return nil, err
	}
	pace, err := parseDuration("check_pace", raw.CheckPace)
	if err != nil {
		return nil, err
	}

	if raw.Concurrency.Capacity < 0 || raw.Concurrency.MaxConns < 0 {
		return nil, fmt.Errorf("concurrency values must not be negative")
	}
	if raw.ContributorLimit < 0 {
		return nil, fmt.Errorf("contributor_limit must not be negative")
	}

	return &ConfigFile{
		Store:            raw.Store,
		Token:            raw.Token,
		APIBase:          raw.GitHub.APIBase,
		WebBase:          raw.GitHub.WebBase,
		UserAgent:        raw.GitHub.UserAgent,
		Timeout:          timeout,
		Capacity:         raw.Concurrency.Capacity,
		MaxConns:         raw.Concurrency.MaxConns,
		CheckPace:        pace,
		ContributorLimit: raw.ContributorLimit,
		Output:           raw.Output,
		Keyring:          raw.Signatures.Keyring,
		KeyIDs:           raw.Signatures.KeyIDs,
		MetricsFile:      raw.MetricsFile,
	}, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
