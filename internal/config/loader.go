package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the timetable
// service. All variables share the BUS_ prefix.
type Config struct {
	HTTPPort            int    `validate:"gt=0,lte=65535"`
	SQLiteDSN           string `validate:"required"`
	Timezone            string `validate:"required"`
	ProjectionHorizon   int    `validate:"gt=0,lte=730"`
	NATSURL             string `validate:"omitempty,uri"`
	MetricsEnabled      bool
	CalendarCacheTTL    time.Duration `validate:"gte=0"`
	ShutdownGracePeriod time.Duration `validate:"gt=0"`
}

// Load reads an optional .env file, then parses configuration from the
// process environment, applying defaults for anything unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Config{
		HTTPPort:            8080,
		SQLiteDSN:           "file:intercity.db",
		Timezone:            "Europe/Warsaw",
		ProjectionHorizon:   365,
		MetricsEnabled:      true,
		CalendarCacheTTL:    30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}

	invalid := make([]string, 0, 2)

	if v := strings.TrimSpace(os.Getenv("BUS_HTTP_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			invalid = append(invalid, "BUS_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if v := strings.TrimSpace(os.Getenv("BUS_SQLITE_DSN")); v != "" {
		cfg.SQLiteDSN = v
	}

	if v := strings.TrimSpace(os.Getenv("BUS_TIMEZONE")); v != "" {
		if _, err := time.LoadLocation(v); err != nil {
			invalid = append(invalid, "BUS_TIMEZONE")
		} else {
			cfg.Timezone = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("BUS_PROJECTION_HORIZON_DAYS")); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			invalid = append(invalid, "BUS_PROJECTION_HORIZON_DAYS")
		} else {
			cfg.ProjectionHorizon = days
		}
	}

	cfg.NATSURL = strings.TrimSpace(os.Getenv("BUS_NATS_URL"))

	if v := strings.TrimSpace(os.Getenv("BUS_METRICS_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, "BUS_METRICS_ENABLED")
		} else {
			cfg.MetricsEnabled = enabled
		}
	}

	if v := strings.TrimSpace(os.Getenv("BUS_CALENDAR_CACHE_TTL")); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			invalid = append(invalid, "BUS_CALENDAR_CACHE_TTL")
		} else {
			cfg.CalendarCacheTTL = ttl
		}
	}

	if v := strings.TrimSpace(os.Getenv("BUS_SHUTDOWN_GRACE_PERIOD")); v != "" {
		grace, err := time.ParseDuration(v)
		if err != nil {
			invalid = append(invalid, "BUS_SHUTDOWN_GRACE_PERIOD")
		} else {
			cfg.ShutdownGracePeriod = grace
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid environment values: %s", strings.Join(invalid, ", "))
	}

	if err := validator.New().Struct(cfg); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			fields := make([]string, 0, len(vErrs))
			for _, fe := range vErrs {
				fields = append(fields, fe.Field())
			}
			return Config{}, fmt.Errorf("config: out-of-range values: %s", strings.Join(fields, ", "))
		}
		return Config{}, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

// Location resolves the configured timezone. Load has already verified it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr is the HTTP listen address derived from the configured port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
