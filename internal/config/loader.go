package config

import (
	"fmt"
	"os"

	"github.com/jimbolo/convtrack/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file, fills in defaults, applies
// environment overrides and validates the result.
func LoadConfig(configPath string) (*models.Config, error) {
	yamlFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var config models.Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", configPath, err)
	}

	ApplyDefaults(&config)

	if err := ApplyEnv(&config); err != nil {
		return nil, err
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Default returns a configuration with every default applied, as used when
// no config file is given.
func Default() *models.Config {
	var config models.Config
	ApplyDefaults(&config)
	return &config
}
