package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loopguard/loopguard/internal/api"
	"github.com/loopguard/loopguard/internal/cachemon"
	"github.com/loopguard/loopguard/internal/memwatch"
	"github.com/loopguard/loopguard/internal/sampler"
	"github.com/loopguard/loopguard/internal/sandbox"
	"github.com/loopguard/loopguard/internal/storage"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("LOOPGUARD_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("LOOPGUARD_HTTP_PORT", "8080")
	blockThresholdMs := envOrDefaultInt("LOOPGUARD_BLOCK_THRESHOLD_MS", 1000)
	sampleIntervalMs := envOrDefaultInt("LOOPGUARD_SAMPLE_INTERVAL_MS", 500)
	maxConsecutive := envOrDefaultInt("LOOPGUARD_MAX_CONSECUTIVE_BLOCKS", 3)
	gcThresholdMB := envOrDefaultInt("LOOPGUARD_GC_THRESHOLD_MB", 128)
	warnThresholdMB := envOrDefaultInt("LOOPGUARD_WARNING_THRESHOLD_MB", 256)
	critThresholdMB := envOrDefaultInt("LOOPGUARD_CRITICAL_THRESHOLD_MB", 512)
	memCheckSec := envOrDefaultInt("LOOPGUARD_MEM_CHECK_INTERVAL_S", 10)
	contextMaxAgeSec := envOrDefaultInt("LOOPGUARD_CONTEXT_MAX_AGE_S", 30)
	cacheTTLSec := envOrDefaultInt("LOOPGUARD_CACHE_TTL_S", 300)
	cacheLimitMB := envOrDefaultInt("LOOPGUARD_CACHE_LIMIT_MB", 64)
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")

	logger.Info("starting loopguard server",
		zap.String("http_port", httpPort),
		zap.Int("block_threshold_ms", blockThresholdMs),
		zap.Int("sample_interval_ms", sampleIntervalMs),
		zap.Int("critical_threshold_mb", critThresholdMB),
	)

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Memory guard
	memCfg := memwatch.DefaultConfig()
	memCfg.GCThreshold = uint64(gcThresholdMB) * 1024 * 1024
	memCfg.WarningThreshold = uint64(warnThresholdMB) * 1024 * 1024
	memCfg.CriticalThreshold = uint64(critThresholdMB) * 1024 * 1024
	memCfg.CheckInterval = time.Duration(memCheckSec) * time.Second

	guard, err := memwatch.New(memCfg, logger)
	if err != nil {
		logger.Fatal("invalid memory guard config", zap.Error(err))
	}
	guard.OnAlert(func(a memwatch.Alert) {
		writer.Write(&storage.AlertEvent{
			ID:          uuid.NewString(),
			Timestamp:   time.Now().UTC(),
			Source:      "memwatch",
			Kind:        a.Type.String(),
			Severity:    "error",
			Message:     storage.TruncateMessage(fmt.Sprintf("memory alert: current=%d threshold=%d", a.Current, a.Threshold), storage.MessagePreviewLength),
			MemoryBytes: a.Current,
		})
	})

	// Reference cache, tracked so the guard has something to shed under
	// pressure. Real deployments register their own caches.
	appCache := cachemon.NewMemoryCache(time.Duration(cacheTTLSec) * time.Second)
	if err := guard.RegisterCache("app", appCache, uint64(cacheLimitMB)*1024*1024); err != nil {
		logger.Fatal("failed to register cache", zap.Error(err))
	}

	guardCtx, stopGuard := context.WithCancel(context.Background())
	defer stopGuard()
	guard.Start(guardCtx)

	// Blocking-operation sampler
	smpCfg := sampler.Config{
		Threshold:            time.Duration(blockThresholdMs) * time.Millisecond,
		Interval:             time.Duration(sampleIntervalMs) * time.Millisecond,
		MaxConsecutiveBlocks: maxConsecutive,
	}
	smp, err := sampler.New(smpCfg, logger)
	if err != nil {
		logger.Fatal("invalid sampler config", zap.Error(err))
	}
	smp.Enable(func(ev sampler.BlockEvent) {
		writer.Write(&storage.AlertEvent{
			ID:         uuid.NewString(),
			Timestamp:  time.Now().UTC(),
			Source:     "sampler",
			Kind:       "blocking_detected",
			Severity:   "error",
			Message:    storage.TruncateMessage(ev.Stack, storage.MessagePreviewLength),
			DurationMs: float64(ev.Duration) / float64(time.Millisecond),
		})
	}, sampler.NewTickScheduler())
	defer smp.Disable()

	// Request isolation
	box := sandbox.New(
		sandbox.NewState(nil),
		time.Duration(contextMaxAgeSec)*time.Second,
		logger,
	)

	// HTTP server
	deps := &api.Dependencies{
		Guard:   guard,
		Sampler: smp,
		Sandbox: box,
		Logger:  logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("loopguard server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
