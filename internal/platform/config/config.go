package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"platewatch/internal/consent/models"
	dErrors "platewatch/pkg/domain-errors"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Redis captures cache connection configuration.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Enforcement controls how the verification engine decides.
type Enforcement struct {
	// RequiredConsents overrides the built-in operation table per operation.
	RequiredConsents map[string][]models.ConsentType

	// CacheTTL bounds how long a verification verdict may be served from
	// cache. It is also the maximum staleness window when a cache
	// invalidation after a write fails.
	CacheTTL time.Duration

	// GracePeriodDays is the window before expiry in which renewal is
	// flagged while access is still granted.
	GracePeriodDays int

	// DefaultExpirationDays applies to stored consents without an
	// explicit expiration.
	DefaultExpirationDays int

	// StrictMode blocks operations on expired consent; non-strict mode
	// allows them with a renewal flag instead.
	StrictMode bool
}

// DefaultEnforcement returns the enforcement posture used when no
// environment overrides are present.
func DefaultEnforcement() Enforcement {
	return Enforcement{
		CacheTTL:              5 * time.Minute,
		GracePeriodDays:       30,
		DefaultExpirationDays: 365,
		StrictMode:            true,
	}
}

// Validate rejects malformed enforcement configuration.
func (c Enforcement) Validate() error {
	if c.CacheTTL < 0 {
		return dErrors.New(dErrors.CodeConfiguration, "cache TTL must not be negative")
	}
	if c.GracePeriodDays < 0 {
		return dErrors.New(dErrors.CodeConfiguration, "grace period days must not be negative")
	}
	if c.DefaultExpirationDays <= 0 {
		return dErrors.New(dErrors.CodeConfiguration, "default expiration days must be positive")
	}
	for operation, types := range c.RequiredConsents {
		if operation == "" {
			return dErrors.New(dErrors.CodeConfiguration, "required-consent override has an empty operation")
		}
		if len(types) == 0 {
			return dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("required-consent override for %q lists no consent types", operation))
		}
		for _, t := range types {
			if !t.IsValid() {
				return dErrors.New(dErrors.CodeConfiguration,
					fmt.Sprintf("required-consent override for %q references unknown type %q", operation, t))
			}
		}
	}
	return nil
}

// GracePeriod returns the grace period as a duration.
func (c Enforcement) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}

// DefaultExpiration returns the default consent lifetime as a duration.
func (c Enforcement) DefaultExpiration() time.Duration {
	return time.Duration(c.DefaultExpirationDays) * 24 * time.Hour
}

// Config bundles everything cmd/server wires at startup.
type Config struct {
	Server      Server
	Redis       Redis
	Enforcement Enforcement
}

// FromEnv builds the full configuration from environment variables so main
// stays lean. Enforcement overrides are validated; a malformed value is a
// startup failure, not a silent fallback.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:          envOr("PLATEWATCH_ADDR", ":8080"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Enforcement: DefaultEnforcement(),
	}

	cfg.Enforcement.CacheTTL = envDuration("CONSENT_CACHE_TTL", cfg.Enforcement.CacheTTL)
	cfg.Enforcement.GracePeriodDays = envInt("CONSENT_GRACE_PERIOD_DAYS", cfg.Enforcement.GracePeriodDays)
	cfg.Enforcement.DefaultExpirationDays = envInt("CONSENT_DEFAULT_EXPIRATION_DAYS", cfg.Enforcement.DefaultExpirationDays)
	if v := os.Getenv("CONSENT_STRICT_MODE"); v != "" {
		cfg.Enforcement.StrictMode = v == "true"
	}

	if raw := os.Getenv("CONSENT_REQUIRED_OVERRIDES"); raw != "" {
		overrides := map[string][]models.ConsentType{}
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return Config{}, dErrors.Wrap(err, dErrors.CodeConfiguration, "CONSENT_REQUIRED_OVERRIDES is not valid JSON")
		}
		cfg.Enforcement.RequiredConsents = overrides
	}

	if err := cfg.Enforcement.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
