package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := LoadWithEnv(filepath.Join(home, "does-not-exist.toml"), noEnv)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MaxOpenDirs != 10 {
		t.Fatalf("MaxOpenDirs = %d, want 10", cfg.MaxOpenDirs)
	}
	if !reflect.DeepEqual(cfg.FilePatterns, []string{"*.log"}) {
		t.Fatalf("FilePatterns = %v, want [*.log]", cfg.FilePatterns)
	}
	if cfg.SearchCacheSize != 100 || cfg.LogLevel != "info" {
		t.Fatalf("SearchCacheSize = %d LogLevel = %q", cfg.SearchCacheSize, cfg.LogLevel)
	}
	if cfg.RetryInitial != 100*time.Millisecond || cfg.RetryMax != 3 {
		t.Fatalf("RetryInitial = %v RetryMax = %d", cfg.RetryInitial, cfg.RetryMax)
	}
	if cfg.Path != "" {
		t.Fatalf("Path = %q, want empty", cfg.Path)
	}
}

func TestLoad_DefaultPathUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "como")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("max_open_dirs = 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithEnv("", noEnv)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MaxOpenDirs != 4 {
		t.Fatalf("MaxOpenDirs = %d, want 4", cfg.MaxOpenDirs)
	}
	if !strings.HasPrefix(cfg.Path, home) {
		t.Fatalf("Path = %q, want it under HOME %q", cfg.Path, home)
	}
}

func TestLoad_ParsesConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
max_open_dirs = 25
file_patterns = ["*.log", " *.out ", ""]
search_cache_size = 500
log_level = " DEBUG "
log_dir = "~/como-logs"
retry_initial_ms = 50
retry_max = 5
`)

	cfg, err := LoadWithEnv(path, noEnv)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MaxOpenDirs != 25 {
		t.Fatalf("MaxOpenDirs = %d, want 25", cfg.MaxOpenDirs)
	}
	if !reflect.DeepEqual(cfg.FilePatterns, []string{"*.log", "*.out"}) {
		t.Fatalf("FilePatterns = %v", cfg.FilePatterns)
	}
	if cfg.SearchCacheSize != 500 {
		t.Fatalf("SearchCacheSize = %d, want 500", cfg.SearchCacheSize)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.LogDir != filepath.Join(home, "como-logs") {
		t.Fatalf("LogDir = %q, want it under HOME %q", cfg.LogDir, home)
	}
	if cfg.RetryInitial != 50*time.Millisecond || cfg.RetryMax != 5 {
		t.Fatalf("RetryInitial = %v RetryMax = %d", cfg.RetryInitial, cfg.RetryMax)
	}
	if cfg.Path != path {
		t.Fatalf("Path = %q, want %q", cfg.Path, path)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "zero dirs", content: "max_open_dirs = 0", wantErr: "max_open_dirs"},
		{name: "negative cache", content: "search_cache_size = -1", wantErr: "search_cache_size"},
		{name: "negative retries", content: "retry_max = -2", wantErr: "retry_max"},
		{name: "zero backoff", content: "retry_initial_ms = 0", wantErr: "retry_initial_ms"},
		{name: "bad toml", content: "max_open_dirs = ", wantErr: "parse config"},
		{name: "wrong type", content: `max_open_dirs = "ten"`, wantErr: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWithEnv(writeConfig(t, tt.content), noEnv)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, "max_open_dirs = 25\nlog_level = \"warn\"\n")

	tests := []struct {
		name         string
		env          map[string]string
		wantDirs     int
		wantLevel    string
		wantWarnings int
	}{
		{name: "unset", env: nil, wantDirs: 25, wantLevel: "warn"},
		{name: "valid", env: map[string]string{EnvMaxOpenDirs: "3", EnvLogLevel: "ERROR"}, wantDirs: 3, wantLevel: "error"},
		{name: "not a number", env: map[string]string{EnvMaxOpenDirs: "many"}, wantDirs: 25, wantLevel: "warn", wantWarnings: 1},
		{name: "zero", env: map[string]string{EnvMaxOpenDirs: "0"}, wantDirs: 25, wantLevel: "warn", wantWarnings: 1},
		{name: "blank", env: map[string]string{EnvMaxOpenDirs: "  "}, wantDirs: 25, wantLevel: "warn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithEnv(path, func(k string) string { return tt.env[k] })
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if cfg.MaxOpenDirs != tt.wantDirs {
				t.Fatalf("MaxOpenDirs = %d, want %d", cfg.MaxOpenDirs, tt.wantDirs)
			}
			if cfg.LogLevel != tt.wantLevel {
				t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, tt.wantLevel)
			}
			if len(cfg.Warnings) != tt.wantWarnings {
				t.Fatalf("Warnings = %v, want %d", cfg.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvMaxOpenDirs, "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MaxOpenDirs != 7 {
		t.Fatalf("MaxOpenDirs = %d, want 7", cfg.MaxOpenDirs)
	}
}
