package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emunx/nxmeta/internal/language"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{
			name:   "defaults - ok",
			mutate: func(*Config) {},
		},
		{
			name:   "kebab case language - ok",
			mutate: func(c *Config) { c.Language.Name = "brazilian-portuguese" },
		},
		{
			name:        "empty prod keys",
			mutate:      func(c *Config) { c.Keys.ProdKeys = "" },
			wantErr:     true,
			errContains: "keys.prod_keys",
		},
		{
			name:        "unknown name language",
			mutate:      func(c *Config) { c.Language.Name = "Klingon" },
			wantErr:     true,
			errContains: "language.name",
		},
		{
			name:        "unknown icon language",
			mutate:      func(c *Config) { c.Language.Icon = "" },
			wantErr:     true,
			errContains: "language.icon",
		},
		{
			name:        "bad user prompt",
			mutate:      func(c *Config) { c.Execution.UserPrompt = "sometimes" },
			wantErr:     true,
			errContains: "execution.user_prompt",
		},
		{
			name:        "no workers",
			mutate:      func(c *Config) { c.Scan.MaxWorkers = 0 },
			wantErr:     true,
			errContains: "scan.max_workers",
		},
		{
			name:        "bad port",
			mutate:      func(c *Config) { c.API.Port = 70000 },
			wantErr:     true,
			errContains: "api.port",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Log.Level = "verbose" },
			wantErr:     true,
			errContains: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	cfg := Default()
	assert.Equal(t, language.AmericanEnglish, cfg.NameLanguage())
	assert.True(t, cfg.PromptsForUser())
	assert.Equal(t, "127.0.0.1:8390", cfg.API.Addr())

	cfg.Language.Icon = "Taiwanese"
	cfg.Execution.UserPrompt = UserPromptNone
	assert.Equal(t, language.Taiwanese, cfg.IconLanguage())
	assert.False(t, cfg.PromptsForUser())
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nxmeta.yaml")
	writeConfig(t, path, `
keys:
  prod_keys: /switch/prod.keys
library:
  roms_dir: /games
language:
  name: French
scan:
  max_workers: 8
`)
	t.Setenv("NXMETA_API_PORT", "9000")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/switch/prod.keys", cfg.Keys.ProdKeys)
	assert.Equal(t, "/games", cfg.Library.RomsDir)
	assert.Equal(t, language.French, cfg.NameLanguage())
	assert.Equal(t, language.AmericanEnglish, cfg.IconLanguage())
	assert.Equal(t, 8, cfg.Scan.MaxWorkers)
	assert.Equal(t, 9000, cfg.API.Port)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, path, "scan:\n  max_workers: 0\n")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "scan.max_workers")
}

func TestManager_ReloadNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nxmeta.yaml")
	writeConfig(t, path, "language:\n  name: AmericanEnglish\n")

	m, err := NewManager(path)
	require.NoError(t, err)

	var gotOld, gotNew *Config
	m.OnConfigChange(func(oldConfig, newConfig *Config) {
		gotOld, gotNew = oldConfig, newConfig
	})

	writeConfig(t, path, "language:\n  name: Japanese\n")
	require.NoError(t, m.Reload())

	require.NotNil(t, gotNew)
	assert.Equal(t, language.AmericanEnglish, gotOld.NameLanguage())
	assert.Equal(t, language.Japanese, gotNew.NameLanguage())
	assert.Same(t, gotNew, m.GetConfig())
}

func TestManager_InvalidReloadKeepsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nxmeta.yaml")
	writeConfig(t, path, "scan:\n  max_workers: 2\n")

	m, err := NewManager(path)
	require.NoError(t, err)
	before := m.GetConfig()

	called := false
	m.OnConfigChange(func(_, _ *Config) { called = true })

	writeConfig(t, path, "scan:\n  max_workers: -1\n")
	assert.Error(t, m.Reload())
	assert.False(t, called)
	assert.Same(t, before, m.GetConfig())
}
