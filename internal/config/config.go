package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tajious/portalauth/internal/validation"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	MagicLink MagicLinkConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
	RabbitMQ  RabbitMQConfig
}

type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development" validate:"oneof=development staging production"`
}

type DatabaseConfig struct {
	Driver   string `env:"DB_DRIVER" env-default:"postgres" validate:"oneof=postgres sqlite"`
	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"postgres"`
	Password string `env:"DB_PASSWORD" env-default:"postgres"`
	DBName   string `env:"DB_NAME" env-default:"portal"`
	SSLMode  string `env:"DB_SSL_MODE" env-default:"disable"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" env-default:"localhost"`
	Port     string `env:"REDIS_PORT" env-default:"6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type SessionConfig struct {
	Secret        string        `env:"SESSION_SECRET" env-required:"true" validate:"min=32"`
	SecureCookies bool          `env:"SESSION_SECURE_COOKIES" env-default:"true"`
	CustomerTTL   time.Duration `env:"CUSTOMER_SESSION_TTL" env-default:"168h" validate:"gt=0"`
	AdminTTL      time.Duration `env:"ADMIN_SESSION_TTL" env-default:"24h" validate:"gt=0"`
	ResellerTTL   time.Duration `env:"RESELLER_SESSION_TTL" env-default:"24h" validate:"gt=0"`

	AdminSecret string `env:"ADMIN_SECRET" env-required:"true" validate:"min=8"`
	// Comma separated Name:secret pairs. A secret may already be a bcrypt hash.
	ResellerCredentials string `env:"RESELLER_CREDENTIALS" env-default:""`
	BcryptCost          int    `env:"BCRYPT_COST" env-default:"10" validate:"min=4,max=31"`
}

type MagicLinkConfig struct {
	TTL             time.Duration `env:"MAGIC_LINK_TTL" env-default:"15m" validate:"gt=0"`
	BaseURL         string        `env:"MAGIC_LINK_BASE_URL" env-default:"http://localhost:8080" validate:"url"`
	CleanupInterval time.Duration `env:"MAGIC_LINK_CLEANUP_INTERVAL" env-default:"1h"`
}

type RateLimitConfig struct {
	Backend      string        `env:"RATE_LIMIT_BACKEND" env-default:"memory" validate:"oneof=memory redis"`
	LoginMax     int           `env:"RATE_LIMIT_LOGIN_MAX" env-default:"5" validate:"min=1"`
	LoginWindow  time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" env-default:"15m" validate:"gt=0"`
	VerifyMax    int           `env:"RATE_LIMIT_VERIFY_MAX" env-default:"20" validate:"min=1"`
	VerifyWindow time.Duration `env:"RATE_LIMIT_VERIFY_WINDOW" env-default:"15m" validate:"gt=0"`
	SweepEvery   time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" env-default:"5m"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" env-default:""`
	Port     int    `env:"SMTP_PORT" env-default:"587"`
	Username string `env:"SMTP_USERNAME" env-default:""`
	Password string `env:"SMTP_PASSWORD" env-default:""`
	From     string `env:"SMTP_FROM" env-default:"no-reply@localhost"`
}

type RabbitMQConfig struct {
	URL           string `env:"RABBITMQ_URL" env-default:""`
	EmailQueue    string `env:"RABBITMQ_EMAIL_QUEUE" env-default:"login_links_email"`
	SMSQueue      string `env:"RABBITMQ_SMS_QUEUE" env-default:"login_links_sms"`
	EmailViaQueue bool   `env:"EMAIL_VIA_QUEUE" env-default:"false"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validation.ValidateStruct(cfg); err != nil {
		return nil, err
	}

	if _, err := cfg.ResellerSecrets(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WorkerConfig is the subset the queue consumer needs.
type WorkerConfig struct {
	SMTP      SMTPConfig
	RabbitMQ  RabbitMQConfig
	MagicLink MagicLinkConfig
}

func LoadWorker() (*WorkerConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var cfg WorkerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.RabbitMQ.URL == "" || cfg.SMTP.Host == "" {
		return nil, fmt.Errorf("config: RABBITMQ_URL and SMTP_HOST are required")
	}

	return &cfg, nil
}

// ResellerSecrets parses RESELLER_CREDENTIALS into a name -> secret map.
func (c *Config) ResellerSecrets() (map[string]string, error) {
	return ParseCredentials(c.Session.ResellerCredentials)
}

func ParseCredentials(raw string) (map[string]string, error) {
	creds := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return creds, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		name, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || secret == "" {
			return nil, fmt.Errorf("config: malformed credential entry %q", name)
		}
		if _, dup := creds[name]; dup {
			return nil, fmt.Errorf("config: duplicate credential name %q", name)
		}
		creds[name] = secret
	}

	return creds, nil
}
