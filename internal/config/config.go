package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SaveTheRbtz/http-seekable-stream-go/engine"
	"github.com/SaveTheRbtz/http-seekable-stream-go/options"
)

const envPrefix = "HTTPCAT_"

// Config defines configuration for the httpcat CLI.
type Config struct {
	UserAgent             string
	Aliases               []string
	ChunkSize             int64
	RewindLimit           int64
	WaitSlice             time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	Parallel              int
	Progress              bool
	Level                 int
}

// Default returns a Config matching the library defaults.
func Default() Config {
	ec := engine.DefaultConfig()
	return Config{
		UserAgent:   ec.UserAgent,
		Aliases:     ec.HTTP200Aliases,
		ChunkSize:   int64(ec.ChunkSize),
		RewindLimit: options.DefaultRewindLimit,
		WaitSlice:   options.DefaultWaitSlice,
		DialTimeout: ec.DialTimeout,
		Parallel:    4,
		Level:       3,
	}
}

// yamlConfig carries sizes and durations as strings.
type yamlConfig struct {
	UserAgent             string   `yaml:"user_agent"`
	Aliases               []string `yaml:"aliases"`
	ChunkSize             string   `yaml:"chunk_size"`
	RewindLimit           string   `yaml:"rewind_limit"`
	WaitSlice             string   `yaml:"wait_slice"`
	DialTimeout           string   `yaml:"dial_timeout"`
	ResponseHeaderTimeout string   `yaml:"response_header_timeout"`
	Parallel              int      `yaml:"parallel"`
	Progress              bool     `yaml:"progress"`
	Level                 int      `yaml:"level"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	if yc.Aliases != nil {
		cfg.Aliases = yc.Aliases
	}
	if yc.ChunkSize != "" {
		if cfg.ChunkSize, err = ParseBytes(yc.ChunkSize); err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
	}
	if yc.RewindLimit != "" {
		if cfg.RewindLimit, err = ParseBytes(yc.RewindLimit); err != nil {
			return Config{}, fmt.Errorf("parse rewind_limit: %w", err)
		}
	}
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"wait_slice", yc.WaitSlice, &cfg.WaitSlice},
		{"dial_timeout", yc.DialTimeout, &cfg.DialTimeout},
		{"response_header_timeout", yc.ResponseHeaderTimeout, &cfg.ResponseHeaderTimeout},
	} {
		if d.value == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.value); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
	}
	if yc.Parallel != 0 {
		cfg.Parallel = yc.Parallel
	}
	cfg.Progress = yc.Progress
	if yc.Level != 0 {
		cfg.Level = yc.Level
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables with the HTTPCAT_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(envPrefix + "USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v, ok := os.LookupEnv(envPrefix + "ALIASES"); ok {
		c.Aliases = nil
		for _, alias := range strings.Split(v, ",") {
			if alias = strings.TrimSpace(alias); alias != "" {
				c.Aliases = append(c.Aliases, alias)
			}
		}
	}
	if v := os.Getenv(envPrefix + "CHUNK_SIZE"); v != "" {
		size, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %sCHUNK_SIZE: %w", envPrefix, err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv(envPrefix + "REWIND_LIMIT"); v != "" {
		size, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %sREWIND_LIMIT: %w", envPrefix, err)
		}
		c.RewindLimit = size
	}
	for name, dst := range map[string]*time.Duration{
		"WAIT_SLICE":              &c.WaitSlice,
		"DIAL_TIMEOUT":            &c.DialTimeout,
		"RESPONSE_HEADER_TIMEOUT": &c.ResponseHeaderTimeout,
	} {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}
	if v := os.Getenv(envPrefix + "PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPARALLEL: %w", envPrefix, err)
		}
		c.Parallel = n
	}
	if v := os.Getenv(envPrefix + "PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv(envPrefix + "LEVEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sLEVEL: %w", envPrefix, err)
		}
		c.Level = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.RewindLimit < 0 {
		return errors.New("config: rewind_limit must not be negative")
	}
	if c.WaitSlice <= 0 {
		return errors.New("config: wait_slice must be positive")
	}
	if c.DialTimeout < 0 || c.ResponseHeaderTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	if c.Parallel <= 0 {
		return errors.New("config: parallel must be positive")
	}
	if c.Level < 1 || c.Level > 22 {
		return fmt.Errorf("config: level must be within [1, 22]: %d", c.Level)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.Aliases != nil {
		c.Aliases = override.Aliases
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.RewindLimit != 0 {
		c.RewindLimit = override.RewindLimit
	}
	if override.WaitSlice != 0 {
		c.WaitSlice = override.WaitSlice
	}
	if override.DialTimeout != 0 {
		c.DialTimeout = override.DialTimeout
	}
	if override.ResponseHeaderTimeout != 0 {
		c.ResponseHeaderTimeout = override.ResponseHeaderTimeout
	}
	if override.Parallel != 0 {
		c.Parallel = override.Parallel
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Level != 0 {
		c.Level = override.Level
	}
	return c
}

// Engine returns the transfer engine configuration.
func (c Config) Engine() engine.Config {
	return engine.Config{
		UserAgent:             c.UserAgent,
		HTTP200Aliases:        c.Aliases,
		ChunkSize:             int(c.ChunkSize),
		DialTimeout:           c.DialTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
	}
}

// ReaderOptions returns the reader options, except logger and engine.
func (c Config) ReaderOptions() []options.ROption {
	return []options.ROption{
		options.WithRewindLimit(c.RewindLimit),
		options.WithWaitSlice(c.WaitSlice),
	}
}

// ParseBytes parses a byte size such as "512", "64KB" or "1.5MB".  Units are binary.
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	s = strings.TrimSpace(s)

	switch upper := strings.ToUpper(s); {
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1 << 30
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1 << 20
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1 << 10
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "B"):
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return int64(value * float64(multiplier)), nil
}
