package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration required by the API and sweep processes.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Auth        AuthConfig
	RingCentral RingCentralConfig
	Tokens      TokenConfig
	Phone       PhoneConfig
	Metrics     MetricsConfig
}

type AppConfig struct {
	Env  string
	Port int
	// URL is the public CRM base URL used for post-OAuth redirects to /settings.
	URL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	// CookieName lets browser navigations (OAuth start) authenticate without a bearer header.
	CookieName string
}

type RingCentralConfig struct {
	ServerURL     string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	WebhookSecret string
	MainNumber    string
	Scopes        []string
	HTTPTimeout   time.Duration

	// AllowUnsignedWebhooks is derived: true only outside production with an empty secret.
	AllowUnsignedWebhooks bool
}

type TokenConfig struct {
	// EncryptionKey is an optional hex-encoded AES-256 key for tokens at rest.
	EncryptionKey string
	RefreshWindow time.Duration
	SweepWorkers  int
}

type PhoneConfig struct {
	DefaultRegion string
}

type MetricsConfig struct {
	Enabled bool
}

const defaultRingCentralServerURL = "https://platform.ringcentral.com"

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_URL", "http://localhost:3000")
	v.SetDefault("AUTH_COOKIE_NAME", "access_token")
	v.SetDefault("RINGCENTRAL_SERVER_URL", defaultRingCentralServerURL)
	v.SetDefault("RINGCENTRAL_SCOPES", "ReadCallLog CallControl SMS")
	v.SetDefault("RINGCENTRAL_HTTP_TIMEOUT", "10s")
	v.SetDefault("TOKEN_REFRESH_WINDOW", "24h")
	v.SetDefault("SWEEP_WORKERS", 8)
	v.SetDefault("PHONE_DEFAULT_REGION", "US")
	v.SetDefault("METRICS_ENABLED", true)
	return v
}

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(newViper())
}

// LoadFrom reads configuration from an existing viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(v.GetString("APP_ENV"))
	c.App.Port, parseErrs = requireInt(v, "APP_PORT", parseErrs)
	c.App.URL = strings.TrimRight(strings.TrimSpace(v.GetString("APP_URL")), "/")

	c.DB.Host = strings.TrimSpace(v.GetString("DB_HOST"))
	c.DB.Port, parseErrs = requireInt(v, "DB_PORT", parseErrs)
	c.DB.User = strings.TrimSpace(v.GetString("DB_USER"))
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(v.GetString("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(v.GetString("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(v.GetString("REDIS_HOST"))
	c.Redis.Port, parseErrs = requireInt(v, "REDIS_PORT", parseErrs)
	c.Redis.Password = v.GetString("REDIS_PASSWORD")

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(v.GetString("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(v.GetString("JWT_AUDIENCE"))
	c.Auth.CookieName = strings.TrimSpace(v.GetString("AUTH_COOKIE_NAME"))

	c.RingCentral.ServerURL = strings.TrimRight(strings.TrimSpace(v.GetString("RINGCENTRAL_SERVER_URL")), "/")
	c.RingCentral.ClientID = strings.TrimSpace(v.GetString("RINGCENTRAL_CLIENT_ID"))
	c.RingCentral.ClientSecret = v.GetString("RINGCENTRAL_CLIENT_SECRET")
	c.RingCentral.RedirectURI = strings.TrimSpace(v.GetString("RINGCENTRAL_REDIRECT_URI"))
	c.RingCentral.WebhookSecret = v.GetString("RINGCENTRAL_WEBHOOK_SECRET")
	c.RingCentral.MainNumber = strings.TrimSpace(v.GetString("RINGCENTRAL_ACCOUNT_MAIN_NUMBER"))
	c.RingCentral.Scopes = strings.Fields(v.GetString("RINGCENTRAL_SCOPES"))
	c.RingCentral.HTTPTimeout, parseErrs = parseDuration(v, "RINGCENTRAL_HTTP_TIMEOUT", parseErrs)

	c.Tokens.EncryptionKey = strings.TrimSpace(v.GetString("TOKEN_ENCRYPTION_KEY"))
	c.Tokens.RefreshWindow, parseErrs = parseDuration(v, "TOKEN_REFRESH_WINDOW", parseErrs)
	c.Tokens.SweepWorkers = v.GetInt("SWEEP_WORKERS")

	c.Phone.DefaultRegion = strings.ToUpper(strings.TrimSpace(v.GetString("PHONE_DEFAULT_REGION")))
	c.Metrics.Enabled = v.GetBool("METRICS_ENABLED")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.RingCentral.ServerURL == "" {
		c.RingCentral.ServerURL = defaultRingCentralServerURL
	}
	if c.RingCentral.ClientID == "" {
		errs = append(errs, errors.New("RINGCENTRAL_CLIENT_ID is required"))
	}
	if c.RingCentral.ClientSecret == "" {
		errs = append(errs, errors.New("RINGCENTRAL_CLIENT_SECRET is required"))
	}
	if c.RingCentral.RedirectURI == "" {
		errs = append(errs, errors.New("RINGCENTRAL_REDIRECT_URI is required"))
	}
	// Unsigned webhooks are a development-only fallback; production fails closed.
	if c.RingCentral.WebhookSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("RINGCENTRAL_WEBHOOK_SECRET is required in production"))
		}
		c.RingCentral.AllowUnsignedWebhooks = !c.IsProduction()
	} else {
		c.RingCentral.AllowUnsignedWebhooks = false
	}
	if c.RingCentral.HTTPTimeout <= 0 {
		c.RingCentral.HTTPTimeout = 10 * time.Second
	}

	if c.Tokens.EncryptionKey != "" {
		key, err := hex.DecodeString(c.Tokens.EncryptionKey)
		if err != nil || len(key) != 32 {
			errs = append(errs, errors.New("TOKEN_ENCRYPTION_KEY must be 64 hex characters (AES-256)"))
		}
	}
	if c.Tokens.RefreshWindow <= 0 {
		c.Tokens.RefreshWindow = 24 * time.Hour
	}
	if c.Tokens.SweepWorkers <= 0 {
		c.Tokens.SweepWorkers = 8
	}

	if c.Phone.DefaultRegion == "" {
		c.Phone.DefaultRegion = "US"
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func requireInt(v *viper.Viper, key string, errs []error) (int, []error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, raw))
	}
	return n, errs
}

func parseDuration(v *viper.Viper, key string, errs []error) (time.Duration, []error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, raw))
	}
	return d, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
