package session

import (
	"os"
	"strconv"
	"time"
)

const minSecretLen = 32

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// Secret signs access tokens (HS256). Never log it.
	Secret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RefreshRetention is how long expired refresh-token rows are kept
	// before PruneExpired deletes them.
	RefreshRetention time.Duration
	PruneInterval    time.Duration

	CookieSecure bool
	CookieDomain string
}

// DefaultConfig returns the production lifetimes without a signing secret.
func DefaultConfig() Config {
	return Config{
		Issuer:           "cinelog",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       30 * 24 * time.Hour,
		RefreshRetention: 7 * 24 * time.Hour,
		PruneInterval:    time.Hour,
		CookieSecure:     true,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - AUTH_JWT_SECRET (at least 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - AUTH_ISSUER
//   - AUTH_ACCESS_TTL
//   - AUTH_REFRESH_TTL
//   - AUTH_REFRESH_RETENTION
//   - AUTH_PRUNE_INTERVAL
//   - AUTH_COOKIE_SECURE (bool)
//   - AUTH_COOKIE_DOMAIN
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"AUTH_ACCESS_TTL", &cfg.AccessTTL},
		{"AUTH_REFRESH_TTL", &cfg.RefreshTTL},
		{"AUTH_REFRESH_RETENTION", &cfg.RefreshRetention},
		{"AUTH_PRUNE_INTERVAL", &cfg.PruneInterval},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("AUTH_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.CookieSecure = b
	}
	cfg.CookieDomain = os.Getenv("AUTH_COOKIE_DOMAIN")

	cfg.Secret = []byte(os.Getenv("AUTH_JWT_SECRET"))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants LoadConfigFromEnv enforces.
func (c Config) Validate() error {
	if len(c.Secret) < minSecretLen {
		return ErrConfig
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.AccessTTL >= c.RefreshTTL {
		return ErrConfig
	}
	return nil
}
