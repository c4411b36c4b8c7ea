package config

import (
	"fmt"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	validProviders := []string{ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q (must be one of %v)", ErrInvalidProvider, c.Provider, validProviders)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		return fmt.Errorf("%w: %q (must be %q or %q)", ErrInvalidStorage, c.Storage, StoragePostgres, StorageMemory)
	}

	if c.Storage == StoragePostgres {
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
		}
	}

	if c.Addr == "" {
		return fmt.Errorf("%w: addr cannot be empty", ErrInvalidAddr)
	}

	if c.CompactionWindow < 1 {
		return fmt.Errorf("%w: window must be at least 1, got %d", ErrInvalidCompaction, c.CompactionWindow)
	}
	if c.CompactionChunk < 1 {
		return fmt.Errorf("%w: chunk must be at least 1, got %d", ErrInvalidCompaction, c.CompactionChunk)
	}

	return nil
}
