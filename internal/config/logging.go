package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`  // debug, info, warn, error
	Format   string         `yaml:"format"` // text, json
	Dir      string         `yaml:"dir"`    // directory for log files and engine output
	Rotation RotationConfig `yaml:"rotation"`
	Console  ConsoleConfig  `yaml:"console"`
	File     FileConfig     `yaml:"file"`
}

// RotationConfig holds log rotation settings
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // number of files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`    // gzip old files
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // optional override
}

// FileConfig controls the fixture log file. Engine process output is
// written next to it whenever Dir is set.
type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // optional override
}

// DefaultLoggingConfig returns the default logging configuration. File
// output is off: fixtures run inside `go test` and should not leave files
// behind unless asked to.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Rotation: RotationConfig{
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Console: ConsoleConfig{
			Enabled: true,
		},
	}
}

// ApplyDefaults fills in missing values with defaults. Console and file
// levels left empty inherit Level.
func (c *LoggingConfig) ApplyDefaults() {
	defaults := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = defaults.Level
	}
	if c.Format == "" {
		c.Format = defaults.Format
	}
	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = defaults.Rotation.MaxSize
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = defaults.Rotation.MaxBackups
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = defaults.Rotation.MaxAge
	}
	if c.Console.Level == "" {
		c.Console.Level = c.Level
	}
	if c.File.Level == "" {
		c.File.Level = c.Level
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *LoggingConfig) ApplyEnvOverrides() {
	if val := os.Getenv("MONGOFIXTURE_LOG_LEVEL"); val != "" {
		c.Level = val
		c.Console.Level = val
		c.File.Level = val
	}
	if val := os.Getenv("MONGOFIXTURE_LOG_DIR"); val != "" {
		c.Dir = val
	}
}

// ResolvePaths makes a relative Dir relative to the config file directory.
func (c *LoggingConfig) ResolvePaths(configDir string) {
	if c.Dir != "" && !filepath.IsAbs(c.Dir) && configDir != "" {
		c.Dir = filepath.Clean(filepath.Join(configDir, c.Dir))
	}
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// Validate validates the configuration
func (c *LoggingConfig) Validate() error {
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Format)
	}
	if c.Console.Level != "" && !validLevels[c.Console.Level] {
		return fmt.Errorf("invalid console log level: %s", c.Console.Level)
	}
	if c.File.Level != "" && !validLevels[c.File.Level] {
		return fmt.Errorf("invalid file log level: %s", c.File.Level)
	}
	if c.File.Enabled && c.Dir == "" {
		return fmt.Errorf("logging.dir is required when file logging is enabled")
	}
	return nil
}
