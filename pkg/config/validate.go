package config

import (
	"fmt"

	"github.com/arcafs/arca/pkg/auth"
	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. It caches struct metadata, so
// one instance serves all Validate calls.
var validate = validator.New()

// Validate checks the configuration for errors.
//
// Struct tags cover the per-field rules (oneof, min/max, required_if);
// the checks below cover relations between fields that tags cannot
// express. Validation does not mutate the configuration; normalization
// happens in ApplyDefaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if _, ok := cfg.Limits.StorageClasses[cfg.Limits.DefaultStorageClass]; !ok {
		return fmt.Errorf("limits: default storage class %q is not in the class list", cfg.Limits.DefaultStorageClass)
	}

	if cfg.Multipart.ChunkSizeMin > cfg.Multipart.ChunkSizeMax {
		return fmt.Errorf("multipart: chunk bounds are inverted: min %s > max %s",
			cfg.Multipart.ChunkSizeMin, cfg.Multipart.ChunkSizeMax)
	}

	if cfg.Auth.Enabled {
		if len(cfg.Auth.JWT.Secret) < 32 {
			return fmt.Errorf("auth: jwt secret must be at least 32 characters when auth is enabled")
		}
		if len(cfg.Auth.Users) == 0 {
			return fmt.Errorf("auth: at least one user is required when auth is enabled")
		}
	}
	if len(cfg.Auth.Users) > 0 {
		// Surfaces duplicate usernames, unknown roles and missing
		// password hashes before the server starts.
		if _, err := auth.NewUsers(cfg.Auth.Users); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if cfg.Queue.RetryBackoff > cfg.Queue.MaxBackoff {
		return fmt.Errorf("queue: retry backoff %s exceeds max backoff %s",
			cfg.Queue.RetryBackoff, cfg.Queue.MaxBackoff)
	}

	return nil
}
