package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/otpx"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the service configuration. Each field is read from the
// environment variable named in LoadConfig.
type Config struct {
	Issuer             string `validate:"required"`
	Audience           string `validate:"required"`
	AccessTokenExpiry  string `validate:"required"`
	RefreshTokenExpiry string `validate:"required"`

	// Outside dev the private key and master key are required; in dev a
	// missing one is replaced by throwaway material generated at startup.
	PrivateKeyFile string `validate:"required_unless=Env dev"`
	PublicKeyFile  string
	PepperFile     string `validate:"required"`
	MasterKeyFile  string `validate:"required_unless=Env dev"`

	HashMemoryKiB   uint32 `validate:"gte=65536"`
	HashTime        uint32 `validate:"gte=3"`
	HashParallelism uint32 `validate:"gte=1,lte=255"`

	TOTPIssuer string `validate:"required"`

	DatabaseFile  string `validate:"required"`
	RedisAddr     string `validate:"required,hostname_port"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	MFAChallengeTTL  time.Duration `validate:"gt=0"`
	LockoutThreshold int           `validate:"gte=1"`
	LockoutWindow    time.Duration `validate:"gt=0"`
	LockoutDuration  time.Duration `validate:"gt=0"`

	Env                  string        `validate:"oneof=dev staging prod"`
	LogLevel             string        `validate:"oneof=debug info warn error"`
	LogFormat            string        `validate:"oneof=json text"`
	Port                 int           `validate:"min=1,max=65535"`
	ShutdownGracePeriod  time.Duration `validate:"gt=0"`
	HousekeepingInterval time.Duration `validate:"gt=0"`

	RateLimits httpx.RateLimits `validate:"-"`
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory if there is one, and validates the result.
//
//	AUTH_ISSUER, AUTH_AUDIENCE             token iss and aud (tally-auth, tally-api)
//	AUTH_ACCESS_TOKEN_EXPIRY               e.g. "15m" (15m)
//	AUTH_REFRESH_TOKEN_EXPIRY              e.g. "7d" (7d)
//	AUTH_PRIVATE_KEY_FILE                  RS256 private key PEM
//	AUTH_PUBLIC_KEY_FILE                   optional, derived from the private key
//	AUTH_PEPPER_FILE                       created on first start (./pepper)
//	AUTH_MASTER_KEY_FILE                   seals TOTP secrets at rest
//	AUTH_HASH_MEMORY_KIB, AUTH_HASH_TIME,
//	AUTH_HASH_PARALLELISM                  Argon2id cost (65536, 3, 2)
//	AUTH_TOTP_ISSUER                       shown in authenticator apps (Tally)
//	AUTH_DATABASE_FILE                     SQLite file (./auth.db)
//	REDIS_ADDR, REDIS_PASSWORD, REDIS_DB   challenge and lockout cache (localhost:6379)
//	AUTH_MFA_CHALLENGE_TTL                 (5m)
//	AUTH_LOCKOUT_THRESHOLD                 failed logins before locking (5)
//	AUTH_LOCKOUT_WINDOW                    window the failures are counted in (15m)
//	AUTH_LOCKOUT_DURATION                  how long a lock lasts (15m)
//	ENV                                    dev, staging or prod (dev)
//	LOG_LEVEL, LOG_FORMAT                  (info, json)
//	PORT                                   (8080)
//	SHUTDOWN_GRACE_PERIOD                  (10s)
//	HOUSEKEEPING_INTERVAL                  (1h)
//	RATELIMIT_{STRICT,MODERATE,LENIENT}_{REQUESTS,WINDOW_SEC,BURST}
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	defaults := cryptox.DefaultHasherConfig()
	cfg := Config{
		Issuer:             getEnvOrDefault("AUTH_ISSUER", "tally-auth"),
		Audience:           getEnvOrDefault("AUTH_AUDIENCE", "tally-api"),
		AccessTokenExpiry:  getEnvOrDefault("AUTH_ACCESS_TOKEN_EXPIRY", jwtx.DefaultAccessTokenExpiry),
		RefreshTokenExpiry: getEnvOrDefault("AUTH_REFRESH_TOKEN_EXPIRY", jwtx.DefaultRefreshTokenExpiry),

		PrivateKeyFile: os.Getenv("AUTH_PRIVATE_KEY_FILE"),
		PublicKeyFile:  os.Getenv("AUTH_PUBLIC_KEY_FILE"),
		PepperFile:     getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		MasterKeyFile:  os.Getenv("AUTH_MASTER_KEY_FILE"),

		HashMemoryKiB:   getEnvUint32OrDefault("AUTH_HASH_MEMORY_KIB", defaults.MemoryKiB),
		HashTime:        getEnvUint32OrDefault("AUTH_HASH_TIME", defaults.Iterations),
		HashParallelism: getEnvUint32OrDefault("AUTH_HASH_PARALLELISM", uint32(defaults.Parallelism)),

		TOTPIssuer: getEnvOrDefault("AUTH_TOTP_ISSUER", "Tally"),

		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		MFAChallengeTTL:  getEnvDurationOrDefault("AUTH_MFA_CHALLENGE_TTL", service.DefaultChallengeTTL),
		LockoutThreshold: getEnvIntOrDefault("AUTH_LOCKOUT_THRESHOLD", service.DefaultLockoutThreshold),
		LockoutWindow:    getEnvDurationOrDefault("AUTH_LOCKOUT_WINDOW", service.DefaultLockoutWindow),
		LockoutDuration:  getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", service.DefaultLockoutDuration),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	limits := httpx.DefaultRateLimits()
	cfg.RateLimits = httpx.RateLimits{
		Strict:   limits.Strict.OverrideFromEnv("STRICT", os.Getenv),
		Moderate: limits.Moderate.OverrideFromEnv("MODERATE", os.Getenv),
		Lenient:  limits.Lenient.OverrideFromEnv("LENIENT", os.Getenv),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints, then that both token expiries parse.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := jwtx.ParseDuration(c.AccessTokenExpiry); err != nil {
		return fmt.Errorf("invalid AUTH_ACCESS_TOKEN_EXPIRY: %w", err)
	}
	if _, err := jwtx.ParseDuration(c.RefreshTokenExpiry); err != nil {
		return fmt.Errorf("invalid AUTH_REFRESH_TOKEN_EXPIRY: %w", err)
	}
	return nil
}

// HasherConfig returns the Argon2id parameters. The pepper is loaded
// separately from PepperFile.
func (c Config) HasherConfig() cryptox.HasherConfig {
	h := cryptox.DefaultHasherConfig()
	h.MemoryKiB = c.HashMemoryKiB
	h.Iterations = c.HashTime
	h.Parallelism = uint8(c.HashParallelism) // #nosec G115 - validated <= 255
	return h
}

// TOTPConfig returns the authenticator settings.
func (c Config) TOTPConfig() otpx.Config {
	return otpx.DefaultConfig(c.TOTPIssuer)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvUint32OrDefault(key string, defaultValue uint32) uint32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if n, err := strconv.ParseUint(value, 10, 32); err == nil {
		return uint32(n)
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
