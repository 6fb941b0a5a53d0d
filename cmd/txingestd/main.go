package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/dmorley/finance-ingest/internal/common"
	"github.com/dmorley/finance-ingest/internal/ingest"
	"github.com/dmorley/finance-ingest/internal/repository"
)

func main() {
	// Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	// Env
	if err := godotenv.Load(); err == nil {
		log.Infow("loaded .env file")
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Store
	var db *sql.DB
	if cfg.Database.DSN != "" {
		d, pool, err := repository.Open(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, slogger)
		if err != nil {
			log.Fatalf("creating DB pool: %v", err)
		}
		defer pool.Close()
		db = d
	} else {
		d, err := repository.OpenSQLite(cfg.Database.SQLitePath, slogger)
		if err != nil {
			log.Fatalf("opening sqlite: %v", err)
		}
		db = d
	}
	defer db.Close()

	if err := repository.HealthCheck(ctx, db, cfg.Database.DialTimeout); err != nil {
		log.Fatalf("DB health failed: %v", err)
	}
	log.Infow("DB health OK")

	// Pipeline
	store := repository.NewTransactionRepository(db, slogger)
	decoder, err := ingest.NewDecoder(slogger)
	if err != nil {
		log.Fatalf("building decoder: %v", err)
	}
	validator := ingest.NewRecordValidator(slogger)
	classifier := ingest.NewClassifier(parentDir(cfg.Ingest.InboundDir), slogger)
	dispatcher := ingest.NewDispatcher(decoder, validator, store, classifier, cfg.Ingest.WorkerCount, slogger)
	watcher := ingest.NewWatcher(cfg.Ingest.InboundDir, cfg.Ingest.PollInterval, dispatcher, slogger)

	// gRPC health endpoint for ops probes
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	dispatcher.Start(ctx)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	log.Infow("ingestion pipeline running",
		"inbound", cfg.Ingest.InboundDir,
		"interval", cfg.Ingest.PollInterval,
		"workers", cfg.Ingest.WorkerCount,
		"grpc", cfg.Server.GRPCAddr,
	)

	// Blocks until the signal context is cancelled: stop claiming new files,
	// let in-flight workers finish, then exit.
	if err := watcher.Run(ctx); err != nil {
		log.Fatalf("watcher: %v", err)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	dispatcher.Stop()
	grpcServer.GracefulStop()

	stats := dispatcher.Snapshot()
	log.Infow("shut down",
		"processed", stats.Processed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
}

// parentDir is where the archive directories live, as siblings of inbound.
func parentDir(inbound string) string {
	return filepath.Dir(filepath.Clean(inbound))
}
