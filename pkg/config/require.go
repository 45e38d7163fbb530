package config

import (
	"errors"
	"fmt"
)

// Validate reports every setting the service cannot start without.
func (c Config) Validate() error {
	var errs []error

	if c.JWTAccessSecret == "" {
		errs = append(errs, missing("JWT_SECRET"))
	}
	if c.JWTRefreshSecret == "" {
		errs = append(errs, missing("JWT_REFRESH_SECRET"))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}

	switch c.StorageBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, missing("MONGODB_URI"))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, missing("MONGODB_DATABASE"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, missing("DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	switch c.RateLimitStore {
	case RateLimitStoreMemory, RateLimitStoreDatabase:
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_STORE %q", c.RateLimitStore))
	}

	return errors.Join(errs...)
}

func missing(envName string) error {
	return fmt.Errorf("missing required env %s", envName)
}
