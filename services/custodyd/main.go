package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	nativecommon "poolcustody/native/common"
	"poolcustody/native/custody"
	"poolcustody/observability/logging"
	telemetry "poolcustody/observability/otel"
	"poolcustody/services/custodyd/poolclient"
	"poolcustody/services/custodyd/server"
)

func main() {
	cfg := LoadConfigFromEnv()
	logger := logging.Setup("custodyd", cfg.Environment)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("starting custodyd",
		slog.String("listen", cfg.Sanitized().Listen),
		slog.String("pool", cfg.Sanitized().PoolRPCURL),
	)

	shutdownTelemetry := setupTelemetry(logger, cfg.Environment)
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	assets, err := custody.LoadConfig(cfg.AssetsConfigPath)
	if err != nil {
		logger.Error("load assets config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := assets.Validate(); err != nil {
		logger.Error("invalid assets config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pool, err := poolclient.New(poolclient.Config{
		BaseURL:     cfg.PoolRPCURL,
		BearerToken: cfg.PoolRPCToken,
	})
	if err != nil {
		logger.Error("build pool client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine := custody.NewEngine(
		common.HexToAddress(cfg.CustodialAccount),
		pool,
		pool,
		pool,
		assets.RiskParameters(),
	)
	engine.SetRateMode(assets.BorrowRateMode)
	assets.Bootstrap(engine.Registry())

	pauses := &nativecommon.PauseSwitch{}
	engine.SetPauses(pauses)

	api := server.New(engine, pauses, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.Handler())

	handler := sharedSecretMiddleware(cfg.SharedSecretHeader, cfg.SharedSecretValue)(
		newRateLimiter(cfg.RateLimitPerMin).middleware(mux),
	)
	handler = otelhttp.NewHandler(handler, "custodyd")

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("custodyd listening", slog.String("addr", cfg.Listen))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("forced shutdown", slog.String("error", err.Error()))
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}

func setupTelemetry(logger *slog.Logger, env string) func(context.Context) error {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "custodyd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     headers,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Warn("telemetry disabled", slog.String("error", err.Error()))
		return nil
	}
	return shutdown
}
