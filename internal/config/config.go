// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Editor() EditorConfig
	Store() StoreConfig
	Shell() ShellConfig
	Codes() CodesConfig

	SetStoreBackend(backend string)
	SetShellURL(url string)
}

// Config holds the entire application configuration. Sections are reached
// through the Interface getters.
type Config struct {
	LoggerCfg LoggerConfig `mapstructure:"logger" yaml:"logger"`
	EditorCfg EditorConfig `mapstructure:"editor" yaml:"editor"`
	StoreCfg  StoreConfig  `mapstructure:"store" yaml:"store"`
	ShellCfg  ShellConfig  `mapstructure:"shell" yaml:"shell"`
	CodesCfg  CodesConfig  `mapstructure:"codes" yaml:"codes"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig { return c.LoggerCfg }
func (c *Config) Editor() EditorConfig { return c.EditorCfg }
func (c *Config) Store() StoreConfig   { return c.StoreCfg }
func (c *Config) Shell() ShellConfig   { return c.ShellCfg }
func (c *Config) Codes() CodesConfig   { return c.CodesCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetStoreBackend(backend string) { c.StoreCfg.Backend = backend }
func (c *Config) SetShellURL(url string)         { c.ShellCfg.URL = url }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EditorConfig tunes the bind list editor.
type EditorConfig struct {
	// SettleDelay is how long a bind must stay untouched before it is saved.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// FlushOnClose saves pending edits on shutdown instead of dropping them.
	FlushOnClose     bool   `mapstructure:"flush_on_close" yaml:"flush_on_close"`
	ClipboardCommand string `mapstructure:"clipboard_command" yaml:"clipboard_command"`
	// DispatchTimeout bounds the store call of one settled edit.
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`
}

// Store backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StoreConfig selects where binds are persisted.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the bind file (.yaml or .json) or the SQLite database.
	Path string `mapstructure:"path" yaml:"path"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

// ShellConfig configures the websocket link between host and editor.
type ShellConfig struct {
	ListenAddr  string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	URL         string        `mapstructure:"url" yaml:"url"`
	SendBuffer  int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	EventBuffer int           `mapstructure:"event_buffer" yaml:"event_buffer"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// CodesConfig configures trigger code capture.
type CodesConfig struct {
	// File is tailed for one captured code per line.
	File string `mapstructure:"file" yaml:"file"`
	// RepeatCode is sent by the remote while a button is held.
	RepeatCode     string        `mapstructure:"repeat_code" yaml:"repeat_code"`
	RepeatInterval time.Duration `mapstructure:"repeat_interval" yaml:"repeat_interval"`
	Prefix         string        `mapstructure:"prefix" yaml:"prefix"`
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// DefaultHome returns ~/.bindpad, or .bindpad when the home directory is unknown.
func DefaultHome() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".bindpad"
	}
	return filepath.Join(home, ".bindpad")
}

// SetDefaults centralizes every default value.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "bindpad")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Editor --
	v.SetDefault("editor.settle_delay", "1s")
	v.SetDefault("editor.flush_on_close", false)
	v.SetDefault("editor.clipboard_command", "")
	v.SetDefault("editor.dispatch_timeout", "30s")

	// -- Store --
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", filepath.Join(DefaultHome(), "binds.yaml"))
	v.SetDefault("store.dsn", "")

	// -- Shell --
	v.SetDefault("shell.listen_addr", "127.0.0.1:7341")
	v.SetDefault("shell.url", "ws://127.0.0.1:7341/ws")
	v.SetDefault("shell.send_buffer", 64)
	v.SetDefault("shell.event_buffer", 16)
	v.SetDefault("shell.dial_timeout", "10s")

	// -- Codes --
	v.SetDefault("codes.file", "")
	v.SetDefault("codes.repeat_code", "0xFFFFFFFF")
	v.SetDefault("codes.repeat_interval", "25ms")
	v.SetDefault("codes.prefix", "0x")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials stay out of the config file.
	_ = v.BindEnv("store.dsn", "BINDPAD_STORE_DSN", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if p, err := homedir.Expand(cfg.StoreCfg.Path); err == nil {
		cfg.StoreCfg.Path = p
	}
	if p, err := homedir.Expand(cfg.CodesCfg.File); err == nil {
		cfg.CodesCfg.File = p
	}
	if p, err := homedir.Expand(cfg.LoggerCfg.LogFile); err == nil {
		cfg.LoggerCfg.LogFile = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.EditorCfg.Validate(); err != nil {
		return fmt.Errorf("editor configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if err := c.ShellCfg.Validate(); err != nil {
		return fmt.Errorf("shell configuration invalid: %w", err)
	}
	if err := c.CodesCfg.Validate(); err != nil {
		return fmt.Errorf("codes configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the editor settings.
func (e *EditorConfig) Validate() error {
	if e.SettleDelay <= 0 {
		return fmt.Errorf("settle_delay must be a positive duration")
	}
	if e.DispatchTimeout < 0 {
		return fmt.Errorf("dispatch_timeout must not be negative")
	}
	return nil
}

// Validate checks that the selected backend has what it needs.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case BackendFile, BackendSQLite:
		if s.Path == "" {
			return fmt.Errorf("path is required for the %s backend", s.Backend)
		}
	case BackendPostgres:
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres backend. Set BINDPAD_STORE_DSN")
		}
	default:
		return fmt.Errorf("unknown backend %q, expected file, sqlite or postgres", s.Backend)
	}
	return nil
}

// Validate checks the shell settings.
func (s *ShellConfig) Validate() error {
	if s.SendBuffer <= 0 || s.EventBuffer < 0 {
		return fmt.Errorf("send_buffer must be positive and event_buffer non-negative")
	}
	if s.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be a positive duration")
	}
	if s.URL != "" && !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
		return fmt.Errorf("url must use the ws or wss scheme")
	}
	return nil
}

// Validate checks the code capture settings.
func (c *CodesConfig) Validate() error {
	if c.RepeatInterval < 0 {
		return fmt.Errorf("repeat_interval must not be negative")
	}
	if c.RepeatCode != "" && c.Prefix != "" && !strings.HasPrefix(c.RepeatCode, c.Prefix) {
		return fmt.Errorf("repeat_code %q does not carry the %q prefix", c.RepeatCode, c.Prefix)
	}
	return nil
}
