// Package config loads service configuration from defaults, the environment,
// an optional YAML file and command line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

// Config represents the application configuration
type Config struct {
	// API contains API server configuration
	API APIConfig `koanf:"api"`
	// Auth contains authentication configuration
	Auth AuthConfig `koanf:"auth"`
	// Password contains the password strength rules
	Password PasswordConfig `koanf:"password"`
	// Database contains database configuration
	Database DatabaseConfig `koanf:"database"`
	// Email contains email service configuration
	Email EmailConfig `koanf:"email"`
	// RateLimit contains per-IP rate limiting configuration
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	// Cleanup contains the token sweeper configuration
	Cleanup CleanupConfig `koanf:"cleanup"`
	// Store contains storage client behaviour
	Store StoreConfig `koanf:"store"`
	// Log contains logger configuration
	Log LogConfig `koanf:"log"`
}

// APIConfig contains API server settings
type APIConfig struct {
	// Port is the server port to listen on
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret is the HMAC key used to sign access tokens
	JWTSecret string `koanf:"jwt_secret"`
	// JWTIssuer is set as the iss claim and required on verification when non-empty
	JWTIssuer            string        `koanf:"jwt_issuer"`
	AccessTokenTTL       time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `koanf:"refresh_token_ttl"`
	VerificationTokenTTL time.Duration `koanf:"verification_token_ttl"`
	ResetTokenTTL        time.Duration `koanf:"reset_token_ttl"`
	// LockoutThreshold is the number of consecutive failures that locks an account
	LockoutThreshold int           `koanf:"lockout_threshold"`
	LockoutDuration  time.Duration `koanf:"lockout_duration"`
	// RequireEmailVerification gates login on a verified email address
	RequireEmailVerification bool `koanf:"require_email_verification"`
	BcryptCost               int  `koanf:"bcrypt_cost"`
	// HashConcurrency bounds the number of bcrypt operations running at once
	HashConcurrency int `koanf:"hash_concurrency"`
}

// PasswordConfig contains the password strength rules
type PasswordConfig struct {
	MinLength     int  `koanf:"min_length"`
	MaxLength     int  `koanf:"max_length"`
	RequireUpper  bool `koanf:"require_upper"`
	RequireLower  bool `koanf:"require_lower"`
	RequireDigit  bool `koanf:"require_digit"`
	RequireSymbol bool `koanf:"require_symbol"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname
	Host string `koanf:"host"`
	// Port is the database server port
	Port int `koanf:"port"`
	// User is the database username
	User string `koanf:"user"`
	// Password is the database password
	Password string `koanf:"password"`
	// DBName is the database name
	DBName string `koanf:"name"`
	// SSLMode is the SSL mode for the database connection
	SSLMode string `koanf:"ssl_mode"`
	// MigrationsPath is the path to database migrations
	MigrationsPath  string        `koanf:"migrations_path"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// EmailConfig contains email service settings
type EmailConfig struct {
	// SMTPHost is the SMTP server hostname. Mail is logged instead of sent when empty.
	SMTPHost string `koanf:"smtp_host"`
	// SMTPPort is the SMTP server port
	SMTPPort int `koanf:"smtp_port"`
	// SMTPUsername is the SMTP authentication username
	SMTPUsername string `koanf:"smtp_username"`
	// SMTPPassword is the SMTP authentication password
	SMTPPassword string `koanf:"smtp_password"`
	// FromAddress is the email address used as sender
	FromAddress string `koanf:"from_address"`
	// AppURL is the base URL of the web application, used in links
	AppURL string `koanf:"app_url"`
	// SendTimeout bounds a single background delivery
	SendTimeout time.Duration `koanf:"send_timeout"`
}

// RateLimitConfig contains per-IP rate limiting settings
type RateLimitConfig struct {
	// Requests is the number of requests allowed per window
	Requests int `koanf:"requests"`
	// Window is the time window in seconds
	Window int `koanf:"window"`
	// Burst is the bucket size
	Burst int `koanf:"burst"`
}

// ScheduleParser accepts standard five-field cron specs plus @hourly style descriptors
var ScheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CleanupConfig contains token sweeper settings
type CleanupConfig struct {
	Enabled bool `koanf:"enabled"`
	// Schedule is a robfig/cron spec
	Schedule string `koanf:"schedule"`
	// Retention is how long expired or revoked rows are kept
	Retention time.Duration `koanf:"retention"`
}

// StoreConfig contains storage client behaviour
type StoreConfig struct {
	// RetryAttempts is the number of retries for reads failing with connection errors
	RetryAttempts  int           `koanf:"retry_attempts"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Defaults returns a configuration with every default applied and no JWT secret
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWTIssuer:                "storyboard",
			AccessTokenTTL:           15 * time.Minute,
			RefreshTokenTTL:          7 * 24 * time.Hour,
			VerificationTokenTTL:     24 * time.Hour,
			ResetTokenTTL:            time.Hour,
			LockoutThreshold:         5,
			LockoutDuration:          15 * time.Minute,
			RequireEmailVerification: true,
			BcryptCost:               12,
			HashConcurrency:          4,
		},
		Password: PasswordConfig{
			MinLength:     8,
			MaxLength:     72,
			RequireUpper:  true,
			RequireLower:  true,
			RequireDigit:  true,
			RequireSymbol: true,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			DBName:          "storyboard",
			SSLMode:         "disable",
			MigrationsPath:  "migrations",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Email: EmailConfig{
			SMTPPort:    587,
			AppURL:      "http://localhost:3000",
			SendTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: 1000,
			Window:   60,
			Burst:    50,
		},
		Cleanup: CleanupConfig{
			Enabled:   true,
			Schedule:  "@hourly",
			Retention: 24 * time.Hour,
		},
		Store: StoreConfig{
			RetryAttempts:  0,
			RetryBaseDelay: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadOptions selects the optional overlays applied on top of the environment
type LoadOptions struct {
	// EnvFile is loaded with godotenv when present. Missing files are ignored.
	EnvFile string
	// ConfigFile is an optional YAML file
	ConfigFile string
	// Flags are applied last. Only flags set on the command line are used.
	Flags *pflag.FlagSet
	// FlagKeys maps flag names to configuration keys, e.g. "port" to "api.port"
	FlagKeys map[string]string
	// SkipValidate is set by commands that only touch the database
	SkipValidate bool
}

// Load builds the configuration from defaults, environment, file and flags, then validates it
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Defaults()
	cfg.LoadFromEnv()

	k := koanf.New(".")
	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to read flags: %w", err)
		}
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if opts.SkipValidate {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv overlays environment variables on the current values
func (c *Config) LoadFromEnv() {
	c.API.Port = getEnvOrDefault("API_PORT", c.API.Port)
	c.API.ShutdownTimeout = getEnvAsDuration("API_SHUTDOWN_TIMEOUT", c.API.ShutdownTimeout)

	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnvOrDefault("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnvOrDefault("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MigrationsPath = getEnvOrDefault("DB_MIGRATIONS_PATH", c.Database.MigrationsPath)
	c.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)

	c.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnvOrDefault("JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.AccessTokenTTL = getEnvAsDuration("ACCESS_TOKEN_TTL", c.Auth.AccessTokenTTL)
	c.Auth.RefreshTokenTTL = getEnvAsDuration("REFRESH_TOKEN_TTL", c.Auth.RefreshTokenTTL)
	c.Auth.VerificationTokenTTL = getEnvAsDuration("VERIFICATION_TOKEN_TTL", c.Auth.VerificationTokenTTL)
	c.Auth.ResetTokenTTL = getEnvAsDuration("RESET_TOKEN_TTL", c.Auth.ResetTokenTTL)
	c.Auth.LockoutThreshold = getEnvAsInt("LOCKOUT_THRESHOLD", c.Auth.LockoutThreshold)
	c.Auth.LockoutDuration = getEnvAsDuration("LOCKOUT_DURATION", c.Auth.LockoutDuration)
	c.Auth.RequireEmailVerification = getEnvAsBool("REQUIRE_EMAIL_VERIFICATION", c.Auth.RequireEmailVerification)
	c.Auth.BcryptCost = getEnvAsInt("BCRYPT_COST", c.Auth.BcryptCost)
	c.Auth.HashConcurrency = getEnvAsInt("HASH_CONCURRENCY", c.Auth.HashConcurrency)

	c.Password.MinLength = getEnvAsInt("PASSWORD_MIN_LENGTH", c.Password.MinLength)
	c.Password.RequireUpper = getEnvAsBool("PASSWORD_REQUIRE_UPPER", c.Password.RequireUpper)
	c.Password.RequireLower = getEnvAsBool("PASSWORD_REQUIRE_LOWER", c.Password.RequireLower)
	c.Password.RequireDigit = getEnvAsBool("PASSWORD_REQUIRE_DIGIT", c.Password.RequireDigit)
	c.Password.RequireSymbol = getEnvAsBool("PASSWORD_REQUIRE_SYMBOL", c.Password.RequireSymbol)

	c.Email.SMTPHost = getEnvOrDefault("SMTP_HOST", c.Email.SMTPHost)
	c.Email.SMTPPort = getEnvAsInt("SMTP_PORT", c.Email.SMTPPort)
	c.Email.SMTPUsername = getEnvOrDefault("SMTP_USERNAME", c.Email.SMTPUsername)
	c.Email.SMTPPassword = getEnvOrDefault("SMTP_PASSWORD", c.Email.SMTPPassword)
	c.Email.FromAddress = getEnvOrDefault("SMTP_FROM", c.Email.FromAddress)
	c.Email.AppURL = getEnvOrDefault("APP_URL", c.Email.AppURL)

	c.RateLimit.Requests = getEnvAsInt("RATE_LIMIT_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = getEnvAsInt("RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Cleanup.Enabled = getEnvAsBool("CLEANUP_ENABLED", c.Cleanup.Enabled)
	c.Cleanup.Schedule = getEnvOrDefault("CLEANUP_SCHEDULE", c.Cleanup.Schedule)
	c.Cleanup.Retention = getEnvAsDuration("CLEANUP_RETENTION", c.Cleanup.Retention)

	c.Store.RetryAttempts = getEnvAsInt("STORE_RETRY_ATTEMPTS", c.Store.RetryAttempts)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
}

// Validate checks the values the services cannot run without
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("bcrypt cost must be between 10 and 14, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.LockoutThreshold < 1 {
		return fmt.Errorf("lockout threshold must be positive, got %d", c.Auth.LockoutThreshold)
	}
	if c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("lockout duration must be positive, got %s", c.Auth.LockoutDuration)
	}
	if c.Auth.HashConcurrency < 1 {
		return fmt.Errorf("hash concurrency must be positive, got %d", c.Auth.HashConcurrency)
	}
	if c.Password.MaxLength > 72 {
		return fmt.Errorf("password max length cannot exceed 72 bytes, got %d", c.Password.MaxLength)
	}
	if c.Store.RetryAttempts < 0 {
		return fmt.Errorf("store retry attempts cannot be negative, got %d", c.Store.RetryAttempts)
	}
	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("rate limit requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window < 1 {
		return fmt.Errorf("rate limit window must be positive, got %d", c.RateLimit.Window)
	}
	if _, err := ScheduleParser.Parse(c.Cleanup.Schedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.Cleanup.Schedule, err)
	}
	return nil
}

// getEnvAsInt retrieves an environment variable and converts it to an integer
func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvAsBool retrieves an environment variable and converts it to a boolean
func getEnvAsBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvOrDefault(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
