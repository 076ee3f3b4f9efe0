package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// EngineConfig controls how the ephemeral mongod is located and started.
type EngineConfig struct {
	// PackageRoot is the directory the binary search pattern is applied to.
	PackageRoot string `yaml:"package_root"`
	// Binary is an explicit mongod path. When set, PackageRoot is not searched.
	Binary string `yaml:"binary"`
	// ReplicaSetName names the single-node replica set the engine joins.
	ReplicaSetName string `yaml:"replica_set_name"`
	// StartupTimeout bounds how long the launcher waits for a primary.
	StartupTimeout time.Duration `yaml:"startup_timeout"`
	// StopTimeout bounds how long Stop waits before killing the process.
	StopTimeout time.Duration `yaml:"stop_timeout"`
	// DataDirParent is where per-engine temporary data directories go.
	// Empty means the OS temp directory.
	DataDirParent string `yaml:"data_dir_parent"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PackageRoot:    defaultPackageRoot(),
		ReplicaSetName: "rs0",
		StartupTimeout: 30 * time.Second,
		StopTimeout:    10 * time.Second,
	}
}

func defaultPackageRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mongofixture")
}

// ApplyDefaults fills in zero values with defaults.
func (c *EngineConfig) ApplyDefaults() {
	defaults := DefaultEngineConfig()
	if c.PackageRoot == "" {
		c.PackageRoot = defaults.PackageRoot
	}
	if c.ReplicaSetName == "" {
		c.ReplicaSetName = defaults.ReplicaSetName
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = defaults.StartupTimeout
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = defaults.StopTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *EngineConfig) ApplyEnvOverrides() {
	if val := os.Getenv("MONGOFIXTURE_PACKAGE_ROOT"); val != "" {
		c.PackageRoot = val
	}
	if val := os.Getenv("MONGOFIXTURE_BINARY"); val != "" {
		c.Binary = val
	}
	if val := os.Getenv("MONGOFIXTURE_REPLSET"); val != "" {
		c.ReplicaSetName = val
	}
	if val := os.Getenv("MONGOFIXTURE_STARTUP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.StartupTimeout = d
		} else if secs, err := strconv.Atoi(val); err == nil {
			c.StartupTimeout = time.Duration(secs) * time.Second
		}
	}
	if val := os.Getenv("MONGOFIXTURE_DATA_DIR"); val != "" {
		c.DataDirParent = val
	}
}

// ResolvePaths resolves relative paths against configDir.
func (c *EngineConfig) ResolvePaths(configDir string) {
	if configDir == "" {
		return
	}
	c.PackageRoot = resolve(configDir, c.PackageRoot)
	c.Binary = resolve(configDir, c.Binary)
	c.DataDirParent = resolve(configDir, c.DataDirParent)
}

// Validate returns an error if the configuration is invalid.
func (c *EngineConfig) Validate() error {
	if c.PackageRoot == "" && c.Binary == "" {
		return fmt.Errorf("engine.package_root or engine.binary is required")
	}
	if c.ReplicaSetName == "" {
		return fmt.Errorf("engine.replica_set_name cannot be empty")
	}
	if c.StartupTimeout < 0 {
		return fmt.Errorf("engine.startup_timeout must be positive, got %s", c.StartupTimeout)
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("engine.stop_timeout must be positive, got %s", c.StopTimeout)
	}
	return nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(base, path))
}
