package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/llmtrader/config"
	"github.com/alejandrodnm/llmtrader/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one trading cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print portfolio, stats and recent trades from storage and exit")
	env := flag.String("env", "", "environment: development|paper_trading|production (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *env != "" {
		cfg.Risk.Environment = *env
		if err := cfg.Validate(); err != nil {
			slog.Error("invalid config", "err", err)
			os.Exit(1)
		}
	}
	setupLogger(cfg.Log)

	if *report {
		if err := printReport(context.Background(), cfg); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("llmtrader starting",
		"config", *configPath,
		"environment", cfg.Environment(),
		"interval", cfg.TradeInterval(),
		"tokens", cfg.Trading.Tokens,
		"oracle", cfg.Oracle.Provider,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := telemetry.Init(ctx, telemetry.Config{Enabled: cfg.Trace.Enabled}); err != nil {
		slog.Error("failed to init tracing", "err", err)
		os.Exit(1)
	}

	a, err := build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build trader", "err", err)
		os.Exit(1)
	}

	runErr := a.run(ctx, *once)
	a.close()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	done()

	if runErr != nil {
		slog.Error("trader exited with error", "err", runErr)
		os.Exit(1)
	}
	slog.Info("llmtrader stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
