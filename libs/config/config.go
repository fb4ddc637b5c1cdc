package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads an optional .env file and then populates spec from the environment.
// Variables already present in the environment win over .env values.
func Load(prefix string, spec any, envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(prefix, spec); err != nil {
		return fmt.Errorf("process env: %w", err)
	}
	return nil
}

func String(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// Port validates a TCP port value loaded for key.
func Port(key, value string) (string, error) {
	p, err := strconv.Atoi(value)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, value)
	}
	return value, nil
}
