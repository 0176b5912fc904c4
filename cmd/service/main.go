package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-api/internal/circuitbreaker"
	"github.com/kjstillabower/climate-api/internal/config"
	"github.com/kjstillabower/climate-api/internal/health"
	httphandler "github.com/kjstillabower/climate-api/internal/http"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/service"
	"github.com/kjstillabower/climate-api/internal/store"
	"github.com/kjstillabower/climate-api/internal/traffic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const breakerComponent = "climate_db"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if l, err := observability.NewLoggerWithLevel(cfg.LogLevel); err == nil {
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.Open(openCtx, store.Options{
		Path:            cfg.DatabasePath,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		BusyTimeout:     cfg.DBBusyTimeout,
	}, logger)
	openCancel()
	if err != nil {
		logger.Fatal("climate database", zap.Error(err), zap.String("path", cfg.DatabasePath))
	}
	logger.Info("climate database opened", zap.String("path", cfg.DatabasePath))

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        breakerComponent,
			IsFailure:        service.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", breakerComponent),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	climateService := service.NewClimateService(db, breaker)

	tracker := traffic.NewTracker()
	observability.RegisterWindowGauges(
		func() int { return tracker.Counts(cfg.OverloadWindow).Total() },
		func() int { return tracker.Counts(cfg.OverloadWindow).Denied },
	)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	checker := health.NewChecker(health.Config{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		PingTimeout:            cfg.DBPingTimeout,
		StartTime:              time.Now(),
	}, db, tracker, logger)

	inflight := &httphandler.InFlightTracker{}
	handler := httphandler.NewHandler(climateService, checker, tracker, logger, version)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		Traffic:        tracker,
		InFlight:       inflight,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	checker.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inflight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inflight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inflight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		logger.Error("climate database close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
