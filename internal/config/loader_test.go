package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BUS_HTTP_PORT",
		"BUS_SQLITE_DSN",
		"BUS_TIMEZONE",
		"BUS_PROJECTION_HORIZON_DAYS",
		"BUS_NATS_URL",
		"BUS_METRICS_ENABLED",
		"BUS_CALENDAR_CACHE_TTL",
		"BUS_SHUTDOWN_GRACE_PERIOD",
	} {
		// t.Setenv registers cleanup so the original value returns after
		// the test.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoaderAppliesDefaults(t *testing.T) {
	clearEnvironment(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.SQLiteDSN != "file:intercity.db" {
		t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
	}
	if cfg.Timezone != "Europe/Warsaw" {
		t.Fatalf("unexpected default timezone: %q", cfg.Timezone)
	}
	if cfg.ProjectionHorizon != 365 {
		t.Fatalf("expected default horizon 365, got %d", cfg.ProjectionHorizon)
	}
	if !cfg.MetricsEnabled {
		t.Fatal("expected metrics to default to enabled")
	}
	if cfg.NATSURL != "" {
		t.Fatalf("expected NATS to be disabled by default, got %q", cfg.NATSURL)
	}
}

func TestLoaderParsesEnvironment(t *testing.T) {
	clearEnvironment(t)
	t.Setenv("BUS_HTTP_PORT", "9090")
	t.Setenv("BUS_SQLITE_DSN", "file:/tmp/bus.db")
	t.Setenv("BUS_TIMEZONE", "Europe/Berlin")
	t.Setenv("BUS_PROJECTION_HORIZON_DAYS", "180")
	t.Setenv("BUS_NATS_URL", "nats://localhost:4222")
	t.Setenv("BUS_METRICS_ENABLED", "false")
	t.Setenv("BUS_CALENDAR_CACHE_TTL", "1m")
	t.Setenv("BUS_SHUTDOWN_GRACE_PERIOD", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
	}
	if cfg.SQLiteDSN != "file:/tmp/bus.db" {
		t.Fatalf("unexpected DSN: %q", cfg.SQLiteDSN)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected timezone: %q", cfg.Timezone)
	}
	if cfg.ProjectionHorizon != 180 {
		t.Fatalf("expected horizon 180, got %d", cfg.ProjectionHorizon)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Fatalf("unexpected NATS URL: %q", cfg.NATSURL)
	}
	if cfg.MetricsEnabled {
		t.Fatal("expected metrics to be disabled")
	}
	if cfg.CalendarCacheTTL != time.Minute {
		t.Fatalf("expected cache TTL 1m, got %s", cfg.CalendarCacheTTL)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("expected grace period 30s, got %s", cfg.ShutdownGracePeriod)
	}
	if cfg.Addr() != ":9090" {
		t.Fatalf("unexpected listen address: %q", cfg.Addr())
	}
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "port not numeric", key: "BUS_HTTP_PORT", value: "eighty", want: "BUS_HTTP_PORT"},
		{name: "port out of range", key: "BUS_HTTP_PORT", value: "70000", want: "HTTPPort"},
		{name: "unknown timezone", key: "BUS_TIMEZONE", value: "Mars/Olympus", want: "BUS_TIMEZONE"},
		{name: "horizon not numeric", key: "BUS_PROJECTION_HORIZON_DAYS", value: "forever", want: "BUS_PROJECTION_HORIZON_DAYS"},
		{name: "horizon too large", key: "BUS_PROJECTION_HORIZON_DAYS", value: "1000", want: "ProjectionHorizon"},
		{name: "metrics toggle not boolean", key: "BUS_METRICS_ENABLED", value: "maybe", want: "BUS_METRICS_ENABLED"},
		{name: "cache ttl not a duration", key: "BUS_CALENDAR_CACHE_TTL", value: "soon", want: "BUS_CALENDAR_CACHE_TTL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnvironment(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to name %s, got %q", tc.want, err.Error())
			}
		})
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{Timezone: "Nowhere/Invalid"}
	if cfg.Location() != time.UTC {
		t.Fatal("expected UTC fallback for an unresolvable timezone")
	}
}
