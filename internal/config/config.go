package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when neither a path nor MONGOFIXTURE_CONFIG is given.
const DefaultFile = "mongofixture.yml"

// Config holds the fixture configuration
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine:  DefaultEngineConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// Load builds the configuration.
// Order: defaults -> YAML file -> .env -> ApplyEnvOverrides -> ResolvePaths -> Validate
//
// A missing file is not an error. path falls back to MONGOFIXTURE_CONFIG,
// then DefaultFile in the working directory.
func Load(path string) (*Config, error) {
	// .env first so it can point at the config file
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv("MONGOFIXTURE_CONFIG")
	}
	if path == "" {
		path = DefaultFile
	}

	cfg := Default()
	configDir := ""
	found, err := loadFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if found {
		configDir = filepath.Dir(path)
	}

	if err := ApplySections(configDir, &cfg.Engine, &cfg.Logging); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func loadFile(filename string, cfg *Config) (bool, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return true, nil
}

// loadDotEnv loads .env from the working directory. Existing environment
// variables win over the file.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}
