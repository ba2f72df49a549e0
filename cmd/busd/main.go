package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/intercity-bus/internal/application"
	"github.com/example/intercity-bus/internal/config"
	"github.com/example/intercity-bus/internal/events"
	httptransport "github.com/example/intercity-bus/internal/http"
	"github.com/example/intercity-bus/internal/metrics"
	"github.com/example/intercity-bus/internal/persistence/sqlite"
	"github.com/example/intercity-bus/internal/recurrence"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()

	if err := pool.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	calendarRepo := sqlite.NewCalendarRepository(pool)
	routeRepo := sqlite.NewRouteRepository(pool)
	scheduleRepo := sqlite.NewScheduleRepository(pool)
	tripRepo := sqlite.NewTripRepository(pool)

	var publisher application.Publisher
	if cfg.NATSURL != "" {
		conn, err := events.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err, "url", cfg.NATSURL)
			os.Exit(1)
		}
		natsPublisher := events.NewPublisher(conn, logger)
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	var collector application.Metrics
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(registry)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	idGenerator := uuid.NewString
	now := time.Now
	expander := &recurrence.Expander{HorizonDays: cfg.ProjectionHorizon}

	calendarService := application.NewCalendarService(calendarRepo, idGenerator, now, logger)
	routeService := application.NewRouteService(routeRepo, idGenerator, now, logger)
	scheduleService := application.NewScheduleService(scheduleRepo, routeRepo, tripRepo, expander, idGenerator, now, logger)
	tripService := application.NewTripService(tripRepo, scheduleRepo, routeRepo, calendarRepo, expander, publisher, collector, cfg.Location(), idGenerator, now, logger)
	if cfg.CalendarCacheTTL > 0 {
		tripService.SetCalendarCacheTTL(cfg.CalendarCacheTTL)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Calendars: httptransport.NewCalendarHandler(calendarService, logger),
		Routes:    httptransport.NewRouteHandler(routeService, logger),
		Schedules: httptransport.NewScheduleHandler(scheduleService, tripService, logger),
		Trips:     httptransport.NewTripHandler(tripService, logger),
		Metrics:   metricsHandler,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireCompany(logger),
		},
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("timetable API listening", "addr", server.Addr, "timezone", cfg.Timezone)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
