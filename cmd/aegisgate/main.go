package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aegisgate-ai/aegisgate/internal/auditlog"
	"github.com/aegisgate-ai/aegisgate/internal/config"
	"github.com/aegisgate-ai/aegisgate/internal/gateway"
	"github.com/aegisgate-ai/aegisgate/internal/keystore"
	"github.com/aegisgate-ai/aegisgate/internal/metrics"
	"github.com/aegisgate-ai/aegisgate/internal/responder"
	"github.com/aegisgate-ai/aegisgate/internal/server"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "aegisgate.yaml", "Path to AegisGate config file")
	flag.Parse()

	// .env is optional; environment wins over the file either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	keys, err := keystore.Open(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("open keystore", zap.Error(err))
	}
	defer keys.Close()

	logs, err := auditlog.NewWithDB(keys.DB(), logger)
	if err != nil {
		logger.Fatal("open audit store", zap.Error(err))
	}

	sinks := []auditlog.Sink{auditlog.NewStoreSink(logs)}
	if cfg.Audit.MirrorPath != "" {
		mirror, err := auditlog.NewFileSink(cfg.Audit.MirrorPath)
		if err != nil {
			logger.Fatal("open audit mirror", zap.Error(err))
		}
		sinks = append(sinks, mirror)
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, nil)

	emitter := auditlog.NewEmitter(auditlog.EmitterConfig{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
		OnDrop:    collector.RecordAuditDrop,
	}, sinks, logger)
	defer emitter.Close(context.Background())

	cr := cron.New()
	if err := auditlog.ScheduleRetention(cr, logs, cfg.Audit.RetentionDays, cfg.Audit.SweepSchedule, logger); err != nil {
		logger.Fatal("schedule retention sweep", zap.Error(err))
	}
	cr.Start()
	defer cr.Stop()

	gw := gateway.New(
		keys,
		responder.NewMock(cfg.Responder.Model),
		emitter,
		collector,
		logger,
		cfg.Responder.Timeout,
	)

	srv := server.New(cfg, gw, keys, logs, emitter, collector, logger)

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	if err := srv.Start(addr); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return zap.Must(cfg.Build())
}
