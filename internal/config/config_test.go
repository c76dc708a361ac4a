// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config dir at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PARLEY_HOME", dir)
	for _, key := range []string{
		"PARLEY_SERVER_URL", "PARLEY_DATA_DIR", "PARLEY_LOG_LEVEL",
		"PARLEY_REMEMBER", "PARLEY_SEAL", "PARLEY_IDENTITY_FILE",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8000", cfg.Server.URL)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.True(t, cfg.Auth.Remember)
	assert.Equal(t, SealNone, cfg.Auth.Seal)
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.Debounce())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Paths(t *testing.T) {
	dir := isolate(t)
	cfg := Default()

	state, err := cfg.StatePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state.db"), state)

	ident, err := cfg.IdentityPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "identity.age"), ident)

	logPath, err := cfg.LogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "parley.log"), logPath)

	cfg.Storage.DataDir = filepath.Join(dir, "data")
	salt, err := cfg.SaltPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "seal.salt"), salt)
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "config.toml", `
[server]
url = "https://chat.example.com/"
timeout_secs = 10

[auth]
remember = false
`},
		{"yaml", "config.yaml", `
server:
  url: https://chat.example.com/
  timeout_secs: 10
auth:
  remember: false
`},
		{"jsonc", "config.json", `{
  // comments are fine
  "server": {"url": "https://chat.example.com/", "timeout_secs": 10,},
  "auth": {"remember": false}
}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := isolate(t)
			writeFile(t, filepath.Join(dir, tc.file), tc.content)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, "https://chat.example.com", cfg.Server.URL, "trailing slash is trimmed")
			assert.Equal(t, 10, cfg.Server.TimeoutSecs)
			assert.False(t, cfg.Auth.Remember)
			assert.Equal(t, "dark", cfg.UI.Theme, "unset values keep defaults")
		})
	}
}

func TestLoad_TOMLWinsOverJSON(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), "[server]\nurl = \"http://toml:1\"\n")
	writeFile(t, filepath.Join(dir, "config.json"), `{"server": {"url": "http://json:2"}}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://toml:1", cfg.Server.URL)
}

func TestLoad_BrokenFileFallsBackWithError(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), "[server\nurl=")

	cfg, err := Load()
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default().Server.URL, cfg.Server.URL)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), "[auth]\nseal = \"rot13\"\n")

	_, err := Load()
	require.Error(t, err)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "auth.seal", verrs[0].Field)
}

func TestLoad_TightensPermissions(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = \"1\"\n"), 0644))

	_, err := Load()
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadFromPath_YAMLExtension(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yml")
	writeFile(t, path, "logging:\n  level: WARNING\n")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PARLEY_SERVER_URL", "https://env.example.com")
	t.Setenv("PARLEY_DATA_DIR", "/tmp/parley-data")
	t.Setenv("PARLEY_LOG_LEVEL", "debug")
	t.Setenv("PARLEY_REMEMBER", "no")
	t.Setenv("PARLEY_SEAL", "age")
	t.Setenv("PARLEY_IDENTITY_FILE", "/tmp/id.age")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Server.URL)
	assert.Equal(t, "/tmp/parley-data", cfg.Storage.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Auth.Remember)
	assert.Equal(t, SealAge, cfg.Auth.Seal)
	assert.Equal(t, "/tmp/id.age", cfg.Auth.IdentityFile)
}

// =============================================================================
// SAVING
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Server.URL = "https://saved.example.com"
	cfg.UI.Markdown = false
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server, loaded.Server)
	assert.False(t, loaded.UI.Markdown)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://x" }, "server.url"},
		{"no host", func(c *Config) { c.Server.URL = "http://" }, "server.url"},
		{"timeout", func(c *Config) { c.Server.TimeoutSecs = 0 }, "server.timeout_secs"},
		{"seal", func(c *Config) { c.Auth.Seal = "gpg" }, "auth.seal"},
		{"poll", func(c *Config) { c.Sync.PollIntervalMs = 1 }, "sync.poll_interval_ms"},
		{"debounce", func(c *Config) { c.Sync.DebounceMs = -1 }, "sync.debounce_ms"},
		{"rate", func(c *Config) { c.Sync.RefreshPerSecond = -1 }, "sync.refresh_per_second"},
		{"level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"sidebar", func(c *Config) { c.UI.SidebarWidth = 4 }, "ui.sidebar_width"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

// =============================================================================
// GET / SET
// =============================================================================

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("server.url", "https://set.example.com"))
	require.NoError(t, cfg.Set("server.timeout_secs", "45"))
	require.NoError(t, cfg.Set("auth.remember", "false"))
	require.NoError(t, cfg.Set("sync.refresh_per_second", "0.5"))

	v, err := cfg.Get("server.url")
	require.NoError(t, err)
	assert.Equal(t, "https://set.example.com", v)
	assert.Equal(t, 45, cfg.Server.TimeoutSecs)
	assert.False(t, cfg.Auth.Remember)
	assert.Equal(t, 0.5, cfg.Sync.RefreshPerSecond)

	_, err = cfg.Get("server.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("server.url.deeper", "x"))
	assert.Error(t, cfg.Set("server.timeout_secs", "soon"))
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Server.URL = "http://other:1"
	assert.Equal(t, "http://localhost:8000", cfg.Server.URL)
}

// =============================================================================
// GLOBAL
// =============================================================================

// TestConfig_ConcurrentAccess checks Global and SetGlobal under the race
// detector.
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestConfig_ConcurrentReload(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()
	_ = Global()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ReloadGlobal()
		}()
	}
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}
