package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attenda/clinic-assistant/internal/api/router"
	"github.com/attenda/clinic-assistant/internal/app/bootstrap"
	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/internal/calendar"
	appconfig "github.com/attenda/clinic-assistant/internal/config"
	"github.com/attenda/clinic-assistant/internal/dialogue"
	"github.com/attenda/clinic-assistant/internal/http/handlers"
	"github.com/attenda/clinic-assistant/internal/loopguard"
	"github.com/attenda/clinic-assistant/internal/observability/metrics"
	"github.com/attenda/clinic-assistant/internal/schedule"
	"github.com/attenda/clinic-assistant/internal/session"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel})
	logger.Info("starting clinic-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "tz", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	weekly, err := schedule.ParseWeeklyHours(cfg.WorkingHours)
	if err != nil {
		logger.Error("invalid working hours", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for sessions and loop guard state")
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Calendar client doubles as busy-interval source and event publisher.
	calendarClient := calendar.NewClient(cfg.CalendarBaseURL, cfg.CalendarAPIKey, cfg.CalendarTimeout, logger)

	hours := schedule.NewStaticHoursSource(map[string]schedule.WeeklyHours{
		cfg.DefaultResourceID: weekly,
	})
	engine := schedule.NewEngine(hours, calendarClient, logger,
		schedule.WithSlotDuration(time.Duration(cfg.SlotDurationMinutes)*time.Minute),
		schedule.WithLocation(loc),
	)

	repo := appointments.NewRepository(pool)
	outbox := calendar.NewOutbox(pool)
	apptService := appointments.NewService(repo, calendarClient, outbox, logger)

	classifier, closeClassifier := bootstrap.BuildClassifier(ctx, cfg, logger)
	if closeClassifier != nil {
		defer func() {
			if err := closeClassifier(); err != nil {
				logger.Warn("failed to close classifier", "error", err)
			}
		}()
	}

	machineOpts := []dialogue.MachineOption{dialogue.WithLocation(loc)}
	if len(cfg.ServiceCatalog) > 0 {
		machineOpts = append(machineOpts, dialogue.WithServices(cfg.ServiceCatalog))
	}
	machine := dialogue.NewMachine(engine, apptService, classifier, cfg.DefaultResourceID, logger, machineOpts...)

	sessions := session.NewStore(redisClient, cfg.SessionTTL)
	states := loopguard.NewStateStore(redisClient)
	guardOpts := []loopguard.Option{
		loopguard.WithThresholds(cfg.RepetitionThreshold, cfg.EscalationThreshold),
	}
	if notifier := bootstrap.BuildEscalationNotifier(cfg, logger); notifier != nil {
		guardOpts = append(guardOpts, loopguard.WithNotifier(notifier))
	}
	guard := loopguard.New(states, logger, guardOpts...)

	transcripts := dialogue.NewTranscriptStore(bootstrap.BuildTranscriptDB(cfg, logger))

	registry := prometheus.NewRegistry()
	convMetrics := metrics.NewConversationMetrics(registry)

	turns := dialogue.NewTurnService(sessions, machine, guard, transcripts, convMetrics, logger)

	// Background delivery of booked appointments to the external calendar.
	deliverer := calendar.NewDeliverer(outbox, repo, calendarClient, logger).
		WithInterval(cfg.OutboxPollInterval).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithRetryPolicy(cfg.OutboxMaxAttempts, cfg.OutboxRetryBaseDelay)
	go deliverer.Run(ctx)

	r := router.New(&router.Config{
		Logger:             logger,
		Chat:               handlers.NewChatWebhookHandler(turns, logger),
		Availability:       handlers.NewAvailabilityHandler(engine, loc, logger),
		Operator:           handlers.NewOperatorHandler(states, apptService, loc, logger),
		OperatorJWTSecret:  cfg.OperatorJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
