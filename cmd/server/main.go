// Package main is the entry point for the medicine tracking server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/medtrack/internal/auth"
	"github.com/vyrodovalexey/medtrack/internal/config"
	"github.com/vyrodovalexey/medtrack/internal/server"
	"github.com/vyrodovalexey/medtrack/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to load configuration", zap.Error(err))
		return 1
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to initialize logger", zap.Error(err))
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.Int("expiry_warning_days", cfg.ExpiryWarningDays),
		zap.Duration("ws_snapshot_interval", cfg.WSSnapshotInterval),
		zap.String("timezone", cfg.Timezone),
		zap.String("auth_mode", cfg.AuthMode),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
	)

	srv, err := newServer(cfg, logger)
	if err != nil {
		logger.Error("failed to build server", zap.Error(err))
		return 1
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return 1
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// newServer builds the store and authenticator described by cfg.
func newServer(cfg *config.Config, logger *zap.Logger) (*server.Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	authenticator, err := createAuthenticator(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}

	medicineStore := store.NewMemoryStore(store.WithLocation(loc))

	return server.New(cfg, logger, medicineStore, authenticator), nil
}

// initLogger builds a JSON zap logger at level; unknown levels mean info.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		InitialFields:    map[string]any{"service": "medtrack"},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// createAuthenticator maps the auth settings in cfg to an authenticator.
// It returns nil when authentication is disabled.
func createAuthenticator(cfg *config.Config, logger *zap.Logger) (auth.Authenticator, error) {
	authenticator, err := auth.New(auth.Settings{
		Mode:              cfg.AuthMode,
		MTLS:              cfg.ClientCertsRequired(),
		MTLSOrganizations: cfg.TLSClientOrganizations,
		BasicUsers:        cfg.BasicAuthUsers,
		APIKeys:           cfg.APIKeys,
	})
	if err != nil {
		return nil, err
	}

	if authenticator == nil {
		logger.Info("authentication disabled")
		return nil, nil
	}

	logger.Info("authentication mode", zap.String("method", string(authenticator.Method())))
	return authenticator, nil
}
