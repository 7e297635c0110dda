// Package config sources credential fallbacks from the environment,
// once, at startup. Core logic never does ambient lookups; it receives
// values from here by way of flags.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for credential fallbacks.
const (
	EnvRegistryUsername = "REGISTRY_USERNAME"
	EnvRegistryToken    = "REGISTRY_TOKEN"
)

type Config struct {
	RegistryUsername string
	RegistryToken    string
}

// Load reads the environment, loading a .env file first if present.
func Load() *Config {
	// Fail silently if there is no .env file.
	_ = godotenv.Load()

	return &Config{
		RegistryUsername: os.Getenv(EnvRegistryUsername),
		RegistryToken:    os.Getenv(EnvRegistryToken),
	}
}
