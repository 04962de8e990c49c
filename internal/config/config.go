// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for vichat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.vichat/config.toml
//   - ~/.vichat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/lamnguyen92/vichat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete vichat configuration.
type Config struct {
	// General settings
	Version     string `toml:"version" json:"version"`
	DefaultTool string `toml:"default_tool" json:"default_tool"`

	// Server connection configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Upload limits
	Upload UploadConfig `toml:"upload" json:"upload"`

	// Reply polling configuration
	Poll PollConfig `toml:"poll" json:"poll"`

	// Speech playback configuration
	Speech SpeechConfig `toml:"speech" json:"speech"`

	// Conversation history persistence
	History HistoryConfig `toml:"history" json:"history"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains chat server connection settings.
type ServerConfig struct {
	// BaseURL is the root URL of the chat backend
	BaseURL string `toml:"base_url" json:"base_url"`
	// RequestTimeoutSecs bounds a single HTTP request
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
	// RateLimitPerSec throttles outbound requests (0 = unlimited)
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateBurst is the rate limiter burst size
	RateBurst int `toml:"rate_burst" json:"rate_burst"`
}

// UploadConfig contains attachment limits enforced client-side before
// anything is put on the wire.
type UploadConfig struct {
	// MaxFileBytes is the per-file size ceiling in bytes
	MaxFileBytes int64 `toml:"max_file_bytes" json:"max_file_bytes"`
	// FirstFileFullHint asks the server to process the first attachment
	// in full rather than summarized
	FirstFileFullHint bool `toml:"first_file_full_hint" json:"first_file_full_hint"`
}

// PollConfig tunes the reply status polling loop. Defaults match the
// server's expected pacing; lowering them is mostly useful in tests.
type PollConfig struct {
	// MaxAttempts is the attempt ceiling before a reply times out
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`
	// BaseDelayMs is the first backoff delay in milliseconds
	BaseDelayMs int `toml:"base_delay_ms" json:"base_delay_ms"`
	// MaxDelayMs caps the backoff delay in milliseconds
	MaxDelayMs int `toml:"max_delay_ms" json:"max_delay_ms"`
	// JitterMs is the maximum random jitter added per delay
	JitterMs int `toml:"jitter_ms" json:"jitter_ms"`
}

// SpeechConfig contains text-to-speech preferences.
type SpeechConfig struct {
	// Enabled controls whether the speech toggle is offered at all
	Enabled bool `toml:"enabled" json:"enabled"`
	// PreferredVoiceVI pins a Vietnamese voice by name (empty = auto)
	PreferredVoiceVI string `toml:"preferred_voice_vi" json:"preferred_voice_vi"`
	// PreferredVoiceEN pins an English voice by name (empty = auto)
	PreferredVoiceEN string `toml:"preferred_voice_en" json:"preferred_voice_en"`
}

// HistoryConfig contains local conversation persistence settings.
type HistoryConfig struct {
	// Enabled controls whether conversations are saved locally
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the SQLite database file (empty = ~/.vichat/history.db)
	Path string `toml:"path" json:"path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
	// ShowTimestamps displays a timestamp next to each message
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:     "1.0.0",
		DefaultTool: "chat",

		Server: ServerConfig{
			BaseURL:            "http://127.0.0.1:5155",
			RequestTimeoutSecs: 30,
			RateLimitPerSec:    10,
			RateBurst:          5,
		},

		Upload: UploadConfig{
			MaxFileBytes:      5 << 20, // 5 MiB per file
			FirstFileFullHint: true,
		},

		Poll: PollConfig{
			MaxAttempts: 80,
			BaseDelayMs: 1000,
			MaxDelayMs:  10000,
			JitterMs:    200,
		},

		Speech: SpeechConfig{
			Enabled: true,
		},

		History: HistoryConfig{
			Enabled: true,
		},

		UI: UIConfig{
			Theme:          "dark",
			CompactMode:    false,
			ShowTimestamps: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the vichat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".vichat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// HistoryPath returns the SQLite history file location, honoring the
// configured override.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finalize(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finalize(cfg)
			}
		}
	}

	cfg, err = finalize(cfg)
	if err != nil {
		return nil, err
	}
	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// finalize applies env overrides, fills gaps, and validates.
func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finalize(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# vichat configuration file\n")
	buf.WriteString("# Generated by vichat - edit with care\n")
	buf.WriteString("\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Server
	if c.Server.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: "must not be empty",
		})
	} else if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("'%s' is not a valid http(s) URL", c.Server.BaseURL),
		})
	}
	if c.Server.RequestTimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.request_timeout_secs",
			Message: "must be at least 1",
		})
	}
	if c.Server.RateLimitPerSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_per_sec",
			Message: "cannot be negative",
		})
	}

	// Upload
	if c.Upload.MaxFileBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "upload.max_file_bytes",
			Message: "must be positive",
		})
	}

	// Poll
	if c.Poll.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "poll.max_attempts",
			Message: "must be at least 1",
		})
	}
	if c.Poll.BaseDelayMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "poll.base_delay_ms",
			Message: "must be positive",
		})
	}
	if c.Poll.MaxDelayMs < c.Poll.BaseDelayMs {
		errs = append(errs, ValidationError{
			Field:   "poll.max_delay_ms",
			Message: "cannot be smaller than base_delay_ms",
		})
	}
	if c.Poll.JitterMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "poll.jitter_ms",
			Message: "cannot be negative",
		})
	}

	// UI
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills in any missing values with defaults. Zero values
// for booleans are honored as stated, everything else falls back.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.DefaultTool == "" {
		c.DefaultTool = defaults.DefaultTool
	}

	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	if c.Server.RequestTimeoutSecs == 0 {
		c.Server.RequestTimeoutSecs = defaults.Server.RequestTimeoutSecs
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}

	if c.Upload.MaxFileBytes == 0 {
		c.Upload.MaxFileBytes = defaults.Upload.MaxFileBytes
	}

	if c.Poll.MaxAttempts == 0 {
		c.Poll.MaxAttempts = defaults.Poll.MaxAttempts
	}
	if c.Poll.BaseDelayMs == 0 {
		c.Poll.BaseDelayMs = defaults.Poll.BaseDelayMs
	}
	if c.Poll.MaxDelayMs == 0 {
		c.Poll.MaxDelayMs = defaults.Poll.MaxDelayMs
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - VICHAT_SERVER_URL: overrides server.base_url
//   - VICHAT_TOOL: overrides default_tool
//   - VICHAT_THEME: overrides ui.theme
//   - VICHAT_NO_SPEECH: set to "1" or "true" to disable speech
//   - VICHAT_NO_HISTORY: set to "1" or "true" to disable persistence
//   - VICHAT_HISTORY_PATH: overrides history.path
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("VICHAT_SERVER_URL"); u != "" {
		c.Server.BaseURL = u
	}

	if tool := os.Getenv("VICHAT_TOOL"); tool != "" {
		c.DefaultTool = tool
	}

	if theme := os.Getenv("VICHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}

	if v := os.Getenv("VICHAT_NO_SPEECH"); v != "" {
		c.Speech.Enabled = !(v == "1" || strings.ToLower(v) == "true")
	}

	if v := os.Getenv("VICHAT_NO_HISTORY"); v != "" {
		c.History.Enabled = !(v == "1" || strings.ToLower(v) == "true")
	}

	if p := os.Getenv("VICHAT_HISTORY_PATH"); p != "" {
		c.History.Path = p
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
