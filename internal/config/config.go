// Package config loads nxmeta's YAML configuration through viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/emunx/nxmeta/internal/language"
)

// EnvPrefix prefixes environment overrides, e.g. NXMETA_KEYS_PROD_KEYS.
const EnvPrefix = "NXMETA"

// User prompt modes for execution.user_prompt.
const (
	UserPromptAsk  = "ask"
	UserPromptNone = "none"
)

// Config is the full application configuration.
type Config struct {
	Keys      KeysConfig      `mapstructure:"keys" yaml:"keys"`
	Library   LibraryConfig   `mapstructure:"library" yaml:"library"`
	Language  LanguageConfig  `mapstructure:"language" yaml:"language"`
	Execution ExecutionConfig `mapstructure:"execution" yaml:"execution"`
	Scan      ScanConfig      `mapstructure:"scan" yaml:"scan"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
}

// KeysConfig points at the console key files.
type KeysConfig struct {
	ProdKeys  string `mapstructure:"prod_keys" yaml:"prod_keys"`
	TitleKeys string `mapstructure:"title_keys" yaml:"title_keys"`
}

// LibraryConfig describes the ROM folder.
type LibraryConfig struct {
	RomsDir   string `mapstructure:"roms_dir" yaml:"roms_dir"`
	Recursive bool   `mapstructure:"recursive" yaml:"recursive"`
}

// LanguageConfig selects which localized name and icon are extracted.
type LanguageConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Icon string `mapstructure:"icon" yaml:"icon"`
}

// ExecutionConfig holds emulator launch preferences.
type ExecutionConfig struct {
	UserPrompt string `mapstructure:"user_prompt" yaml:"user_prompt"`
}

// ScanConfig tunes folder scans.
type ScanConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`
}

// DatabaseConfig locates the catalog database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// APIConfig is the HTTP listener.
type APIConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LogConfig controls logging and log file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ExportConfig is where sidecar files are written.
type ExportConfig struct {
	RootPath string `mapstructure:"root_path" yaml:"root_path"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("keys.prod_keys", "keys/prod.keys")
	v.SetDefault("keys.title_keys", "")
	v.SetDefault("library.roms_dir", "roms")
	v.SetDefault("library.recursive", true)
	v.SetDefault("language.name", language.AmericanEnglish.String())
	v.SetDefault("language.icon", language.AmericanEnglish.String())
	v.SetDefault("execution.user_prompt", UserPromptAsk)
	v.SetDefault("scan.max_workers", 4)
	v.SetDefault("database.path", "nxmeta.db")
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8390)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("export.root_path", "export")
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not unmarshal: %v", err))
	}
	return cfg
}

// LoadConfig reads path (or nxmeta.yaml from the usual locations when path
// is empty), applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := newViper(path)
	if err := readConfig(v, path); err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nxmeta")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/nxmeta")
	}
	return v
}

func readConfig(v *viper.Viper, path string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the application cannot use.
func (c *Config) Validate() error {
	if c.Keys.ProdKeys == "" {
		return fmt.Errorf("keys.prod_keys cannot be empty")
	}
	if c.Library.RomsDir == "" {
		return fmt.Errorf("library.roms_dir cannot be empty")
	}
	if _, err := language.Parse(c.Language.Name); err != nil {
		return fmt.Errorf("language.name: %w", err)
	}
	if _, err := language.Parse(c.Language.Icon); err != nil {
		return fmt.Errorf("language.icon: %w", err)
	}
	switch c.Execution.UserPrompt {
	case UserPromptAsk, UserPromptNone:
	default:
		return fmt.Errorf("execution.user_prompt must be %q or %q, got %q", UserPromptAsk, UserPromptNone, c.Execution.UserPrompt)
	}
	if c.Scan.MaxWorkers < 1 {
		return fmt.Errorf("scan.max_workers must be at least 1")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// NameLanguage returns the parsed language.name.
func (c *Config) NameLanguage() language.Language {
	l, _ := language.Parse(c.Language.Name)
	return l
}

// IconLanguage returns the parsed language.icon.
func (c *Config) IconLanguage() language.Language {
	l, _ := language.Parse(c.Language.Icon)
	return l
}

// PromptsForUser reports whether emulator launches should ask for a user.
func (c *Config) PromptsForUser() bool {
	return c.Execution.UserPrompt != UserPromptNone
}
