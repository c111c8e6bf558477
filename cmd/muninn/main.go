package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn/internal/config"
	"github.com/friendsincode/muninn/internal/db"
	"github.com/friendsincode/muninn/internal/logbuffer"
	"github.com/friendsincode/muninn/internal/logging"
	"github.com/friendsincode/muninn/internal/server"
	"github.com/friendsincode/muninn/internal/telemetry"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	policy config.Policy
	logBuf *logbuffer.Buffer
)

var rootCmd = &cobra.Command{
	Use:   "muninn",
	Short: "Muninn - unattended broadcast continuity core",
	Long:  "Muninn keeps an unattended audio station on air: priority fallback chain, hourly break production, drop-in ingest and civil-time scheduling.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Muninn continuity server",
	Long:  "Start the control API, scheduler and background producers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	policy, err = config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

// loadConfigForServe additionally tees log output into the in-memory ring
// buffer served by /v1/logs and a daily file under the log directory.
func loadConfigForServe() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	policy, err = config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	logBuf = logbuffer.New(0)
	writers := []io.Writer{logBuf}
	if logFile, err := logging.OpenDailyFile(cfg.LogDir, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: log file unavailable: %v\n", err)
	} else {
		writers = append(writers, logFile)
	}

	logger = logging.SetupWithWriter(cfg.Environment, io.MultiWriter(writers...))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfigForServe(); err != nil {
		return err
	}

	logger.Info().Msg("Muninn starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "muninn",
		ServiceVersion: "0.0.1-alpha",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, policy, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	srv.Start()

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("control API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	metricsServer := srv.MetricsServer()
	go func() {
		logger.Info().Str("addr", metricsServer.Addr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := metricsServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Muninn stopped")
	return nil
}

// initDatabase initializes the database connection (used by operator commands)
func initDatabase() (*gorm.DB, error) {
	return db.Connect(cfg)
}
