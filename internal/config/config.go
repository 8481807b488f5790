// Package config loads viewer settings from an optional TOML file and the
// environment.
//
// Resolution order, later wins: built-in defaults, the config file
// (~/.config/como/config.toml unless a path is given), then the environment
// variables COMO_MAX_OPEN_DIRS and COMO_LOG_LEVEL. A missing file is not an
// error. Invalid environment values keep the previous value and are
// reported in Config.Warnings.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	EnvMaxOpenDirs = "COMO_MAX_OPEN_DIRS"
	EnvLogLevel    = "COMO_LOG_LEVEL"
)

const (
	defaultConfigPath      = "~/.config/como/config.toml"
	defaultMaxOpenDirs     = 10
	defaultSearchCacheSize = 100
	defaultLogLevel        = "info"
	defaultRetryInitial    = 100 * time.Millisecond
	defaultRetryMax        = 3
)

var defaultFilePatterns = []string{"*.log"}

// Config holds the resolved settings.
type Config struct {
	MaxOpenDirs     int
	FilePatterns    []string
	SearchCacheSize int
	LogLevel        string
	LogDir          string // empty means the temp directory
	RetryInitial    time.Duration
	RetryMax        int

	// Path is the config file that was read, empty if none existed.
	Path string
	// Warnings lists settings that were ignored.
	Warnings []string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxOpenDirs:     defaultMaxOpenDirs,
		FilePatterns:    append([]string(nil), defaultFilePatterns...),
		SearchCacheSize: defaultSearchCacheSize,
		LogLevel:        defaultLogLevel,
		RetryInitial:    defaultRetryInitial,
		RetryMax:        defaultRetryMax,
	}
}

type fileConfig struct {
	MaxOpenDirs     *int     `toml:"max_open_dirs"`
	FilePatterns    []string `toml:"file_patterns"`
	SearchCacheSize *int     `toml:"search_cache_size"`
	LogLevel        string   `toml:"log_level"`
	LogDir          string   `toml:"log_dir"`
	RetryInitialMS  *int     `toml:"retry_initial_ms"`
	RetryMax        *int     `toml:"retry_max"`
}

// Load reads the config file at path (the default location when empty) and
// applies environment overrides.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.applyFile(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", resolved, err)
		}
		cfg.Path = resolved
	}

	cfg.applyEnv(getenv)
	return cfg, nil
}

func (c *Config) applyFile(data []byte) error {
	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.MaxOpenDirs != nil {
		if *raw.MaxOpenDirs <= 0 {
			return fmt.Errorf("max_open_dirs must be positive, got %d", *raw.MaxOpenDirs)
		}
		c.MaxOpenDirs = *raw.MaxOpenDirs
	}
	if len(raw.FilePatterns) > 0 {
		c.FilePatterns = nil
		for _, p := range raw.FilePatterns {
			if p = strings.TrimSpace(p); p != "" {
				c.FilePatterns = append(c.FilePatterns, p)
			}
		}
		if len(c.FilePatterns) == 0 {
			c.FilePatterns = append([]string(nil), defaultFilePatterns...)
		}
	}
	if raw.SearchCacheSize != nil {
		if *raw.SearchCacheSize <= 0 {
			return fmt.Errorf("search_cache_size must be positive, got %d", *raw.SearchCacheSize)
		}
		c.SearchCacheSize = *raw.SearchCacheSize
	}
	if lvl := strings.TrimSpace(raw.LogLevel); lvl != "" {
		c.LogLevel = strings.ToLower(lvl)
	}
	if dir := strings.TrimSpace(raw.LogDir); dir != "" {
		expanded, err := expandPath(dir)
		if err != nil {
			return err
		}
		c.LogDir = expanded
	}
	if raw.RetryInitialMS != nil {
		if *raw.RetryInitialMS <= 0 {
			return fmt.Errorf("retry_initial_ms must be positive, got %d", *raw.RetryInitialMS)
		}
		c.RetryInitial = time.Duration(*raw.RetryInitialMS) * time.Millisecond
	}
	if raw.RetryMax != nil {
		if *raw.RetryMax < 0 {
			return fmt.Errorf("retry_max must not be negative, got %d", *raw.RetryMax)
		}
		c.RetryMax = *raw.RetryMax
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvMaxOpenDirs)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.Warnings = append(c.Warnings,
				fmt.Sprintf("ignoring %s=%q: want a positive integer", EnvMaxOpenDirs, v))
		} else {
			c.MaxOpenDirs = n
		}
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
