package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Unpaper"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"unpaper"`
	}

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
	}

	Storage struct {
		Driver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	}

	Auth struct {
		JWTSecret string        `envconfig:"AUTH_JWT_SECRET"`
		TokenTTL  time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"12h"`
		// DevLogin exposes POST /session, which issues tokens without credentials.
		DevLogin bool `envconfig:"AUTH_DEV_LOGIN" default:"false"`
	}

	Signing struct {
		TokenTTL    time.Duration `envconfig:"SIGNING_TOKEN_TTL" default:"168h"`
		MaxAttempts int           `envconfig:"SIGNING_MAX_ATTEMPTS" default:"10"`
	}

	Notary struct {
		GrantTTL time.Duration `envconfig:"NOTARY_GRANT_TTL" default:"168h"`
	}

	Billing struct {
		ProcedureFee decimal.Decimal `envconfig:"BILLING_PROCEDURE_FEE" default:"29990"`
		Currency     string          `envconfig:"BILLING_CURRENCY" default:"CLP"`
	}

	Webhook struct {
		Secret string `envconfig:"WEBHOOK_SECRET"`
	}

	Console struct {
		TenantID string `envconfig:"CONSOLE_TENANT_ID" default:"demo"`
		UID      string `envconfig:"CONSOLE_UID" default:"operator"`
		Role     string `envconfig:"CONSOLE_ROLE" default:"broker"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Signing.MaxAttempts < 1 {
		return nil, fmt.Errorf("SIGNING_MAX_ATTEMPTS must be positive, got %d", cfg.Signing.MaxAttempts)
	}

	return &cfg, nil
}
