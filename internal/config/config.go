// Package config provides configuration management for gdbmi-dap.
//
// Configuration controls:
//   - GDB: the executable, extra arguments and MI command timeout
//   - Logging: level and an optional rotating log file
//   - Metrics: the address of the Prometheus endpoint
//   - MCP: capability mode, permission flags and session limits
//
// Values come from defaults, then an optional file (JSON, YAML or TOML),
// then GDBMI_DAP_* environment variables, e.g. GDBMI_DAP_GDB_PATH.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ctagard/gdbmi-dap/internal/mi"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GDBMI_DAP"

// CapabilityMode defines the level of debugging capabilities exposed over MCP
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Inspection tools only
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Config holds the server configuration
type Config struct {
	GDB     GDBConfig     `mapstructure:"gdb"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	MCP     MCPConfig     `mapstructure:"mcp"`
}

// GDBConfig holds GDB-specific configuration
type GDBConfig struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`

	// CommandTimeout bounds the wait for each MI command's result record
	CommandTimeout time.Duration `mapstructure:"commandTimeout"`

	// ShutdownGrace is how long gdb gets to exit before it is killed
	ShutdownGrace time.Duration `mapstructure:"shutdownGrace"`

	// NewConsole gives the program its own console window (Windows)
	NewConsole bool `mapstructure:"newConsole"`

	// Sentinel ends every MI output batch
	Sentinel string `mapstructure:"sentinel"`
}

// LogConfig holds logging configuration. Rotation follows lumberjack.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds the metrics endpoint configuration. An empty Addr
// disables the endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// MCPConfig holds configuration for the MCP front end
type MCPConfig struct {
	Mode          CapabilityMode `mapstructure:"mode"`
	AllowModify   bool           `mapstructure:"allowModify"`
	AllowEvaluate bool           `mapstructure:"allowEvaluate"`

	// Limits for safety
	MaxSessions    int           `mapstructure:"maxSessions"`
	SessionTimeout time.Duration `mapstructure:"sessionTimeout"`
}

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		GDB: GDBConfig{
			Path:           "gdb",
			CommandTimeout: time.Second,
			ShutdownGrace:  2 * time.Second,
			NewConsole:     runtime.GOOS == "windows",
			Sentinel:       mi.DefaultSentinel(),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		MCP: MCPConfig{
			Mode:           ModeFull,
			AllowModify:    true,
			AllowEvaluate:  true,
			MaxSessions:    10,
			SessionTimeout: 30 * time.Minute,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("gdb.path", d.GDB.Path)
	v.SetDefault("gdb.args", d.GDB.Args)
	v.SetDefault("gdb.commandTimeout", d.GDB.CommandTimeout)
	v.SetDefault("gdb.shutdownGrace", d.GDB.ShutdownGrace)
	v.SetDefault("gdb.newConsole", d.GDB.NewConsole)
	v.SetDefault("gdb.sentinel", d.GDB.Sentinel)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.maxSizeMB", d.Log.MaxSizeMB)
	v.SetDefault("log.maxBackups", d.Log.MaxBackups)
	v.SetDefault("log.maxAgeDays", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("mcp.mode", string(d.MCP.Mode))
	v.SetDefault("mcp.allowModify", d.MCP.AllowModify)
	v.SetDefault("mcp.allowEvaluate", d.MCP.AllowEvaluate)
	v.SetDefault("mcp.maxSessions", d.MCP.MaxSessions)
	v.SetDefault("mcp.sessionTimeout", d.MCP.SessionTimeout)
}

// New returns a viper instance holding the defaults and reading GDBMI_DAP_*
// environment variables. Command-line flags can be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the file at path, if any, into v and returns the validated
// configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads the configuration from defaults, the environment and the
// file at path.
func LoadConfig(path string) (*Config, error) {
	return Load(New(), path)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.GDB.Path == "" {
		return fmt.Errorf("gdb.path must not be empty")
	}
	if c.GDB.CommandTimeout <= 0 {
		return fmt.Errorf("gdb.commandTimeout must be positive, got %s", c.GDB.CommandTimeout)
	}
	if c.GDB.ShutdownGrace <= 0 {
		return fmt.Errorf("gdb.shutdownGrace must be positive, got %s", c.GDB.ShutdownGrace)
	}
	if c.GDB.Sentinel == "" {
		return fmt.Errorf("gdb.sentinel must not be empty")
	}
	if !levels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("unknown log.level %q: expected debug, info, warn or error", c.Log.Level)
	}
	switch c.MCP.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("unknown mcp.mode %q: expected readonly or full", c.MCP.Mode)
	}
	if c.MCP.MaxSessions <= 0 {
		return fmt.Errorf("mcp.maxSessions must be positive, got %d", c.MCP.MaxSessions)
	}
	if c.MCP.SessionTimeout <= 0 {
		return fmt.Errorf("mcp.sessionTimeout must be positive, got %s", c.MCP.SessionTimeout)
	}
	return nil
}

// CanUseControlTools returns true if execution control tools are enabled
func (c *MCPConfig) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanModifyVariables returns true if variable modification is allowed
func (c *MCPConfig) CanModifyVariables() bool {
	return c.Mode == ModeFull && c.AllowModify
}

// CanEvaluate returns true if expression evaluation is allowed
func (c *MCPConfig) CanEvaluate() bool {
	return c.AllowEvaluate
}
