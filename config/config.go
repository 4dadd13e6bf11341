package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// MinHMACSecretLength is the shortest shared signing secret accepted
	MinHMACSecretLength = 32
)

// Messaging providers selectable with MESSAGING_PROVIDER
const (
	ProviderMeta    = "meta"
	ProviderTwilio  = "twilio"
	ProviderSNS     = "sns"
	ProviderConsole = "console"
)

// Store drivers selectable with STORE_DRIVER
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Application struct {
	Env                     string
	Version                 string
	GracefulShutdownTimeout time.Duration
}

// IsProduction reports whether the service runs in the production context
func (a Application) IsProduction() bool {
	return a.Env == EnvProduction
}

type HTTPServer struct {
	Port           int
	BodyLimit      string
	AllowedOrigins []string
}

type Store struct {
	Driver string
}

type Redis struct {
	URL            string
	Host           string
	Port           int
	Password       string
	DB             int
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	ConnectRetries uint64
}

type Logger struct {
	Level string
	Mode  string // development or production
}

type OTP struct {
	TTL         time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

type RateLimit struct {
	Window              time.Duration
	MaxRequests         int
	PhoneWindow         time.Duration
	MaxRequestsPerPhone int
}

type Auth struct {
	HMACSecret  string
	HMACEnabled bool
}

type Meta struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	TemplateName  string
	TemplateLang  string
}

type Twilio struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type SNS struct {
	Region   string
	SenderID string
}

type Messaging struct {
	Provider      string
	RatePerSecond float64
	Burst         int
	Meta          Meta
	Twilio        Twilio
	SNS           SNS
}

type VerificationToken struct {
	Secret string
	TTL    time.Duration
}

type Config struct {
	Application       Application
	HTTPServer        HTTPServer
	Store             Store
	Redis             Redis
	Logger            Logger
	OTP               OTP
	RateLimit         RateLimit
	Auth              Auth
	Messaging         Messaging
	VerificationToken VerificationToken
}

// Load reads configuration from the environment, optionally seeded from a .env file
func Load() (*Config, error) {
	// A missing .env file is the normal case outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	env := getEnvWithDefault("APP_ENV", EnvDevelopment)

	cfg := &Config{
		Application: Application{
			Env:                     env,
			Version:                 getEnvWithDefault("APP_VERSION", "1.0.0"),
			GracefulShutdownTimeout: parseDurationWithDefault("APPLICATION_GRACEFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		HTTPServer: HTTPServer{
			Port:           parseIntWithDefault("HTTP_SERVER_PORT", 3000),
			BodyLimit:      getEnvWithDefault("HTTP_SERVER_BODY_LIMIT", "1M"),
			AllowedOrigins: parseListWithDefault("ALLOWED_ORIGINS", nil),
		},
		Store: Store{
			Driver: getEnvWithDefault("STORE_DRIVER", StoreRedis),
		},
		Redis: Redis{
			URL:            getEnvWithDefault("REDIS_URL", ""),
			Host:           getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:           parseIntWithDefault("REDIS_PORT", 6379),
			Password:       getEnvWithDefault("REDIS_PASSWORD", ""),
			DB:             parseIntWithDefault("REDIS_DB", 0),
			DialTimeout:    parseDurationWithDefault("REDIS_DIAL_TIMEOUT", 10*time.Second),
			CommandTimeout: parseDurationWithDefault("REDIS_COMMAND_TIMEOUT", 5*time.Second),
			ConnectRetries: uint64(parseIntWithDefault("REDIS_CONNECT_RETRIES", 10)),
		},
		Logger: Logger{
			Level: getEnvWithDefault("LOGGER_LEVEL", "info"),
			Mode:  getEnvWithDefault("LOGGER_MODE", modeFor(env)),
		},
		OTP: OTP{
			TTL:         time.Duration(parseIntWithDefault("OTP_TTL_MINUTES", 5)) * time.Minute,
			MaxAttempts: parseIntWithDefault("MAX_OTP_ATTEMPTS", 5),
			Cooldown:    time.Duration(parseIntWithDefault("COOLDOWN_SECONDS", 60)) * time.Second,
		},
		RateLimit: RateLimit{
			Window:              parseDurationWithDefault("RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxRequests:         parseIntWithDefault("RATE_LIMIT_MAX_REQUESTS", 100),
			PhoneWindow:         parseDurationWithDefault("RATE_LIMIT_PHONE_WINDOW", 15*time.Minute),
			MaxRequestsPerPhone: parseIntWithDefault("RATE_LIMIT_MAX_REQUESTS_PER_PHONE", 5),
		},
		Auth: Auth{
			HMACSecret:  getEnvWithDefault("HMAC_SECRET", ""),
			HMACEnabled: getEnvBoolWithDefault("HMAC_AUTH_ENABLED", env == EnvProduction),
		},
		Messaging: Messaging{
			Provider:      getEnvWithDefault("MESSAGING_PROVIDER", ProviderMeta),
			RatePerSecond: parseFloatWithDefault("MESSAGING_RATE_PER_SECOND", 20),
			Burst:         parseIntWithDefault("MESSAGING_BURST", 20),
			Meta: Meta{
				AccessToken:   getEnvWithDefault("META_ACCESS_TOKEN", ""),
				PhoneNumberID: getEnvWithDefault("META_PHONE_NUMBER_ID", ""),
				APIVersion:    getEnvWithDefault("META_API_VERSION", "v18.0"),
				TemplateName:  getEnvWithDefault("META_TEMPLATE_NAME", "otp_verification"),
				TemplateLang:  getEnvWithDefault("META_TEMPLATE_LANGUAGE", "en_US"),
			},
			Twilio: Twilio{
				AccountSID: getEnvWithDefault("TWILIO_ACCOUNT_SID", ""),
				AuthToken:  getEnvWithDefault("TWILIO_AUTH_TOKEN", ""),
				FromNumber: getEnvWithDefault("TWILIO_FROM_NUMBER", ""),
			},
			SNS: SNS{
				Region:   getEnvWithDefault("SNS_REGION", "us-east-1"),
				SenderID: getEnvWithDefault("SNS_SENDER_ID", ""),
			},
		},
		VerificationToken: VerificationToken{
			Secret: getEnvWithDefault("VERIFICATION_TOKEN_SECRET", ""),
			TTL:    parseDurationWithDefault("VERIFICATION_TOKEN_TTL", 15*time.Minute),
		},
	}

	// Support legacy environment variables for backwards compatibility
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTPServer.Port = p
		}
	}
	if ms := os.Getenv("RATE_LIMIT_WINDOW_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.RateLimit.Window = time.Duration(n) * time.Millisecond
			cfg.RateLimit.PhoneWindow = cfg.RateLimit.Window
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	var problems []string

	if len(c.Auth.HMACSecret) < MinHMACSecretLength {
		problems = append(problems, fmt.Sprintf("HMAC_SECRET must be at least %d characters", MinHMACSecretLength))
	}
	if !c.Auth.HMACEnabled && c.Application.IsProduction() {
		problems = append(problems, "HMAC_AUTH_ENABLED cannot be disabled in production")
	}

	if c.OTP.TTL <= 0 {
		problems = append(problems, "OTP_TTL_MINUTES must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		problems = append(problems, "MAX_OTP_ATTEMPTS must be positive")
	}
	if c.OTP.Cooldown <= 0 {
		problems = append(problems, "COOLDOWN_SECONDS must be positive")
	}

	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW and RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimit.PhoneWindow <= 0 || c.RateLimit.MaxRequestsPerPhone <= 0 {
		problems = append(problems, "RATE_LIMIT_PHONE_WINDOW and RATE_LIMIT_MAX_REQUESTS_PER_PHONE must be positive")
	}

	switch c.Store.Driver {
	case StoreRedis:
	case StoreMemory:
		if c.Application.IsProduction() {
			problems = append(problems, "STORE_DRIVER=memory is not allowed in production")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Messaging.Provider {
	case ProviderMeta:
		if c.Messaging.Meta.AccessToken == "" || c.Messaging.Meta.PhoneNumberID == "" {
			problems = append(problems, "META_ACCESS_TOKEN and META_PHONE_NUMBER_ID are required when using Meta provider")
		}
	case ProviderTwilio:
		if c.Messaging.Twilio.AccountSID == "" || c.Messaging.Twilio.AuthToken == "" || c.Messaging.Twilio.FromNumber == "" {
			problems = append(problems, "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER are required when using Twilio provider")
		}
	case ProviderSNS:
		if c.Messaging.SNS.Region == "" {
			problems = append(problems, "SNS_REGION is required when using SNS provider")
		}
	case ProviderConsole:
		if c.Application.IsProduction() {
			problems = append(problems, "MESSAGING_PROVIDER=console is not allowed in production")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown MESSAGING_PROVIDER %q", c.Messaging.Provider))
	}

	if c.Messaging.RatePerSecond < 0 {
		problems = append(problems, "MESSAGING_RATE_PER_SECOND cannot be negative")
	}

	if c.VerificationToken.Secret != "" && c.VerificationToken.TTL <= 0 {
		problems = append(problems, "VERIFICATION_TOKEN_TTL must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

// RedisAddr returns host:port for the discrete REDIS_HOST/REDIS_PORT settings
func (r Redis) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func modeFor(env string) string {
	if env == EnvProduction {
		return "production"
	}
	return "development"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
