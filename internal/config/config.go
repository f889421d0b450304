// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Провайдеры отправки почты.
const (
	MailProviderLog      = "log"
	MailProviderSendGrid = "sendgrid"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Ops      OpsConfig     `yaml:"ops"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Mail     MailConfig    `yaml:"mail"`
	Janitor  JanitorConfig `yaml:"janitor"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig — публичный HTTP API.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// OpsConfig — служебный listener: /livez, /healthz, /metrics.
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"50081"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (o OpsConfig) Addr() string {
	return net.JoinHostPort(o.Host, o.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	ActivationTokenTTL time.Duration `yaml:"activation_token_ttl" env:"ACTIVATION_TOKEN_TTL" env-default:"24h"`
	ResetTokenTTL      time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL" env-default:"10m"`
	Issuer             string        `yaml:"issuer" env:"ISSUER" env-default:"identity-service"`
	Audience           []string      `yaml:"audience" env:"AUDIENCE" env-default:"api-gateway"`
	// RequireActivation запрещает вход до подтверждения e-mail.
	RequireActivation bool   `yaml:"require_activation" env:"REQUIRE_ACTIVATION" env-default:"false"`
	BuyerRole         string `yaml:"buyer_role" env:"BUYER_ROLE" env-default:"ROLE_BUYER"`
	InvestorRole      string `yaml:"investor_role" env:"INVESTOR_ROLE" env-default:"ROLE_INVESTOR"`
	BcryptCost        int    `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// DBConfig — настройки хранилища.
type DBConfig struct {
	Driver      string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
	MaxConns    int32  `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
}

// RedisConfig — кэш чёрного списка; пустой URL отключает кэш.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth:bl:"`
}

// MailConfig — отправка уведомлений.
type MailConfig struct {
	Provider       string        `yaml:"provider" env:"MAIL_PROVIDER" env-default:"log"`
	SendGridAPIKey string        `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
	Sandbox        bool          `yaml:"sandbox" env:"MAIL_SANDBOX" env-default:"false"`
	FromEmail      string        `yaml:"from_email" env:"MAIL_FROM_EMAIL" env-default:"no-reply@example.com"`
	FromName       string        `yaml:"from_name" env:"MAIL_FROM_NAME" env-default:"Identity Service"`
	BackendURL     string        `yaml:"backend_url" env:"BACKEND_URL" env-default:"http://localhost:8080"`
	FrontendURL    string        `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	ActivatedURL   string        `yaml:"activated_redirect" env:"ACTIVATED_REDIRECT" env-default:"http://localhost:3000/login"`
	Workers        int           `yaml:"workers" env:"MAIL_WORKERS" env-default:"4"`
	QueueSize      int           `yaml:"queue_size" env:"MAIL_QUEUE_SIZE" env-default:"256"`
	SendTimeout    time.Duration `yaml:"send_timeout" env:"MAIL_SEND_TIMEOUT" env-default:"10s"`
}

// JanitorConfig — фоновая очистка: расписание (синтаксис robfig/cron)
// и предел времени одного прогона.
type JanitorConfig struct {
	Schedule string        `yaml:"schedule" env:"JANITOR_SCHEDULE" env-default:"@every 30m"`
	Timeout  time.Duration `yaml:"timeout" env:"JANITOR_TIMEOUT" env-default:"1m"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		if err := cfg.validate(); err != nil {
			return nil, err
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate проверяет взаимозависимые поля, которые cleanenv не выражает тегами.
func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DatabaseURL == "" {
			return errors.New("invalid config: db.db_url is required for postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid config: unknown db.driver %q", c.DB.Driver)
	}

	switch c.Mail.Provider {
	case MailProviderSendGrid:
		if c.Mail.SendGridAPIKey == "" {
			return errors.New("invalid config: mail.sendgrid_api_key is required for sendgrid provider")
		}
	case MailProviderLog:
	default:
		return fmt.Errorf("invalid config: unknown mail.provider %q", c.Mail.Provider)
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 ||
		c.Auth.ActivationTokenTTL <= 0 || c.Auth.ResetTokenTTL <= 0 {
		return errors.New("invalid config: token ttl must be positive")
	}

	if c.Janitor.Timeout <= 0 {
		return errors.New("invalid config: janitor.timeout must be positive")
	}

	return nil
}
