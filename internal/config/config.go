// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for parley.
//
// Supports TOML, YAML and JSON (comments allowed) configuration files, with
// sensible defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.parley/config.toml
//   - ~/.parley/config.yaml
//   - ~/.parley/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/parley/internal/util"
)

// CurrentVersion is the config schema version written by SaveTOML.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	Version string `toml:"version" yaml:"version" json:"version"`

	Server  ServerConfig  `toml:"server" yaml:"server" json:"server"`
	Auth    AuthConfig    `toml:"auth" yaml:"auth" json:"auth"`
	Storage StorageConfig `toml:"storage" yaml:"storage" json:"storage"`
	Sync    SyncConfig    `toml:"sync" yaml:"sync" json:"sync"`
	Logging LoggingConfig `toml:"logging" yaml:"logging" json:"logging"`
	UI      UIConfig      `toml:"ui" yaml:"ui" json:"ui"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	URL         string `toml:"url" yaml:"url" json:"url"`
	TimeoutSecs int    `toml:"timeout_secs" yaml:"timeout_secs" json:"timeout_secs"`
}

// AuthConfig controls where credentials are kept.
type AuthConfig struct {
	// Remember keeps the token in the shared durable store so it survives
	// restarts and is visible to other instances.
	Remember bool `toml:"remember" yaml:"remember" json:"remember"`

	// Seal protects durable tokens at rest: none, age or passphrase.
	Seal string `toml:"seal" yaml:"seal" json:"seal"`

	// IdentityFile is the age identity used when Seal is "age". Empty means
	// <data_dir>/identity.age.
	IdentityFile string `toml:"identity_file" yaml:"identity_file" json:"identity_file"`
}

// StorageConfig locates local state.
type StorageConfig struct {
	// DataDir holds the shared state database. Empty means the config dir.
	DataDir string `toml:"data_dir" yaml:"data_dir" json:"data_dir"`
}

// SyncConfig tunes cross-instance synchronization.
type SyncConfig struct {
	PollIntervalMs   int     `toml:"poll_interval_ms" yaml:"poll_interval_ms" json:"poll_interval_ms"`
	DebounceMs       int     `toml:"debounce_ms" yaml:"debounce_ms" json:"debounce_ms"`
	RefreshPerSecond float64 `toml:"refresh_per_second" yaml:"refresh_per_second" json:"refresh_per_second"`
	ForcePolling     bool    `toml:"force_polling" yaml:"force_polling" json:"force_polling"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level" json:"level"`

	// File is the JSON log path. Empty means <config_dir>/parley.log.
	File string `toml:"file" yaml:"file" json:"file"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	Markdown     bool   `toml:"markdown" yaml:"markdown" json:"markdown"`
	Theme        string `toml:"theme" yaml:"theme" json:"theme"`
	SidebarWidth int    `toml:"sidebar_width" yaml:"sidebar_width" json:"sidebar_width"`
}

// Seal modes.
const (
	SealNone       = "none"
	SealAge        = "age"
	SealPassphrase = "passphrase"
)

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,

		Server: ServerConfig{
			URL:         "http://localhost:8000",
			TimeoutSecs: 30,
		},

		Auth: AuthConfig{
			Remember: true,
			Seal:     SealNone,
		},

		Sync: SyncConfig{
			PollIntervalMs:   1000,
			DebounceMs:       100,
			RefreshPerSecond: 2,
		},

		Logging: LoggingConfig{
			Level: "info",
		},

		UI: UIConfig{
			Markdown:     true,
			Theme:        "dark",
			SidebarWidth: 28,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the parley configuration directory path. PARLEY_HOME
// overrides the default of ~/.parley.
func ConfigDir() (string, error) {
	if dir := os.Getenv("PARLEY_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) { return configPath("config.toml") }

// ConfigPathYAML returns the path to the YAML config file.
func ConfigPathYAML() (string, error) { return configPath("config.yaml") }

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) { return configPath("config.json") }

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens config files to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir), nil
	}
	return ConfigDir()
}

// StatePath returns the shared state database path.
func (c *Config) StatePath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.db"), nil
}

// IdentityPath returns the age identity path.
func (c *Config) IdentityPath() (string, error) {
	if c.Auth.IdentityFile != "" {
		return expandHome(c.Auth.IdentityFile), nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "identity.age"), nil
}

// SaltPath returns where the passphrase sealer keeps its salt.
func (c *Config) SaltPath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "seal.salt"), nil
}

// LogPath returns the log file path.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File != "" {
		return expandHome(c.Logging.File), nil
	}
	return configPath("parley.log")
}

// Timeout returns the REST request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// PollInterval returns the polling watcher interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMs) * time.Millisecond
}

// Debounce returns the file event debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Sync.DebounceMs) * time.Millisecond
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// loader decodes one file format onto cfg.
type loader struct {
	path func() (string, error)
	load func(cfg *Config, path string) error
	name string
}

var loaders = []loader{
	{ConfigPathTOML, LoadTOML, "TOML"},
	{ConfigPathYAML, LoadYAML, "YAML"},
	{ConfigPathJSON, LoadJSON, "JSON"},
}

// Load loads configuration from the first config file found, falling back
// to defaults. Environment overrides are applied last. A file that exists
// but fails to decode is reported alongside the defaults.
func Load() (*Config, error) {
	var loadErr error

	for _, l := range loaders {
		path, err := l.path()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg := Default()
		if err := l.load(cfg, path); err != nil {
			loadErr = fmt.Errorf("failed to load %s config: %w", l.name, err)
			break
		}
		return finish(cfg)
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// finish applies overrides, migration, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadYAML loads configuration from a YAML file.
func LoadYAML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file. Comments and trailing
// commas are accepted.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full
// validation. The format follows the file extension; TOML is the default.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
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

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# parley configuration file")
	fmt.Fprintln(&buf, "# Generated by parley - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if u, err := url.Parse(c.Server.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("server.url", "invalid URL '%s', must be http(s)://host[:port]", c.Server.URL)
	}
	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 600 {
		add("server.timeout_secs", "must be between 1 and 600, got %d", c.Server.TimeoutSecs)
	}

	// Auth
	switch c.Auth.Seal {
	case SealNone, SealAge, SealPassphrase:
	default:
		add("auth.seal", "invalid mode '%s', must be one of: none, age, passphrase", c.Auth.Seal)
	}

	// Sync
	if c.Sync.PollIntervalMs < 10 {
		add("sync.poll_interval_ms", "must be at least 10, got %d", c.Sync.PollIntervalMs)
	}
	if c.Sync.DebounceMs < 0 || c.Sync.DebounceMs > 10000 {
		add("sync.debounce_ms", "must be between 0 and 10000, got %d", c.Sync.DebounceMs)
	}
	if c.Sync.RefreshPerSecond < 0 {
		add("sync.refresh_per_second", "must not be negative, got %g", c.Sync.RefreshPerSecond)
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	// UI
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}
	if c.UI.SidebarWidth < 16 || c.UI.SidebarWidth > 80 {
		add("ui.sidebar_width", "must be between 16 and 80, got %d", c.UI.SidebarWidth)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty values with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Server.URL == "" {
		c.Server.URL = d.Server.URL
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = d.Server.TimeoutSecs
	}
	if c.Auth.Seal == "" {
		c.Auth.Seal = d.Auth.Seal
	}
	if c.Sync.PollIntervalMs == 0 {
		c.Sync.PollIntervalMs = d.Sync.PollIntervalMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.SidebarWidth == 0 {
		c.UI.SidebarWidth = d.UI.SidebarWidth
	}
}

// Migrate upgrades values written by older versions.
func (c *Config) Migrate() error {
	if c.Version != "" && c.Version != CurrentVersion {
		if _, err := strconv.Atoi(c.Version); err != nil {
			return fmt.Errorf("unknown config version %q", c.Version)
		}
	}
	c.Version = CurrentVersion

	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	c.Auth.Seal = strings.ToLower(strings.TrimSpace(c.Auth.Seal))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.UI.Theme = strings.ToLower(strings.TrimSpace(c.UI.Theme))
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - PARLEY_SERVER_URL: overrides server.url
//   - PARLEY_DATA_DIR: overrides storage.data_dir
//   - PARLEY_LOG_LEVEL: overrides logging.level
//   - PARLEY_REMEMBER: overrides auth.remember
//   - PARLEY_SEAL: overrides auth.seal
//   - PARLEY_IDENTITY_FILE: overrides auth.identity_file
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PARLEY_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("PARLEY_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PARLEY_REMEMBER"); v != "" {
		c.Auth.Remember = parseBool(v)
	}
	if v := os.Getenv("PARLEY_SEAL"); v != "" {
		c.Auth.Seal = v
	}
	if v := os.Getenv("PARLEY_IDENTITY_FILE"); v != "" {
		c.Auth.IdentityFile = v
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "server.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type
// conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.url",
		"server.timeout_secs",
		"auth.remember",
		"auth.seal",
		"auth.identity_file",
		"storage.data_dir",
		"sync.poll_interval_ms",
		"sync.debounce_ms",
		"sync.refresh_per_second",
		"sync.force_polling",
		"logging.level",
		"logging.file",
		"ui.markdown",
		"ui.theme",
		"ui.sidebar_width",
	}
}

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state. Tests only.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
