package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/medisched/medisched/internal/pkg/env"
)

// Config is the process configuration. It is loaded once at startup and
// passed to constructors; business code never reads the environment.
type Config struct {
	// Server
	AppHost    string `envconfig:"APP_HOST" default:"localhost"`
	AppPort    string `envconfig:"APP_PORT" default:"4000"`
	AppEnv     string `envconfig:"APP_ENV" default:"prod"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:5173"`

	// Database
	DBDriver   string `envconfig:"DB_DRIVER" default:"mysql"`
	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort     string `envconfig:"DB_PORT" default:"3306"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"medisched"`
	DBDSN      string `envconfig:"DB_DSN"`

	// Cache
	CacheHost     string `envconfig:"CACHE_HOST"`
	CachePort     string `envconfig:"CACHE_PORT" default:"6379"`
	CachePassword string `envconfig:"CACHE_PASSWORD"`

	// Auth
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	JWTTTLMinutes int    `envconfig:"JWT_TTL_MINUTES" default:"60"`

	// Webhook and checkout
	WebhookSecret             string `envconfig:"WEBHOOK_SECRET"`
	WebhookLegacyProvisioning bool   `envconfig:"WEBHOOK_LEGACY_PROVISIONING" default:"false"`
	CheckoutBaseURL           string `envconfig:"CHECKOUT_BASE_URL" default:"https://checkout.example.com"`
	CheckoutProductID         string `envconfig:"CHECKOUT_PRODUCT_ID"`
	CheckoutPriceLabel        string `envconfig:"CHECKOUT_PRICE_LABEL" default:"$10.00/month"`

	// Mail
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPSender   string `envconfig:"SMTP_SENDER" default:"no-reply@localhost"`

	// Message bus
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"scheduling.events"`

	// Scheduling window
	ScheduleTimezone  string `envconfig:"SCHEDULE_TIMEZONE" default:"UTC"`
	ScheduleOpenHour  int    `envconfig:"SCHEDULE_OPEN_HOUR" default:"8"`
	ScheduleCloseHour int    `envconfig:"SCHEDULE_CLOSE_HOUR" default:"20"`

	// Metrics
	MetricsUser     string `envconfig:"METRICS_USER" default:"admin"`
	MetricsPassword string `envconfig:"METRICS_PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	env.SetupEnvFile()
	env.Export()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.ScheduleOpenHour < 0 || c.ScheduleCloseHour > 24 || c.ScheduleOpenHour >= c.ScheduleCloseHour {
		return fmt.Errorf("invalid schedule window %d-%d", c.ScheduleOpenHour, c.ScheduleCloseHour)
	}
	if _, err := time.LoadLocation(c.ScheduleTimezone); err != nil {
		return fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", c.ScheduleTimezone, err)
	}
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// Location returns the timezone the daily booking window is evaluated in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) CacheEnabled() bool {
	return c.CacheHost != ""
}
