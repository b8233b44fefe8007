package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/joho/godotenv"
)

// Environment variables that override sink and beacon secrets.
const (
	EnvConversionID    = "CONVTRACK_CONVERSION_ID"
	EnvConversionLabel = "CONVTRACK_CONVERSION_LABEL"
	EnvSinkEndpoint    = "CONVTRACK_SINK_ENDPOINT"
	EnvBeaconToken     = "CONVTRACK_BEACON_TOKEN"
)

// ApplyEnv loads application.env_file (if set) into the process environment
// without overriding variables already present, then applies the
// CONVTRACK_* overrides to cfg.
func ApplyEnv(cfg *models.Config) error {
	if path := cfg.Application.EnvFile; path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file '%s': %w", path, err)
		}
	}
	override(&cfg.Sink.ConversionID, EnvConversionID)
	override(&cfg.Sink.ConversionLabel, EnvConversionLabel)
	override(&cfg.Sink.Endpoint, EnvSinkEndpoint)
	override(&cfg.Beacon.AuthToken, EnvBeaconToken)
	return nil
}

func override(field *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*field = v
	}
}
