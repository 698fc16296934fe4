package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"facultyportal/internal/config"
	"facultyportal/internal/export"
	"facultyportal/internal/ledger"
	"facultyportal/internal/logging"
	"facultyportal/internal/queue"
	"facultyportal/internal/store"
)

// Worker consumes commit events, records receipts and writes registers.
func main() {
	cfg := config.Load()
	log, err := logging.New(cfg.Production(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	for _, w := range cfg.Warnings {
		log.Warn("config fallback", zap.String("detail", w))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis to share commits with the api")
	}

	var repo *ledger.Repository
	if cfg.DatabaseURL != "" {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("db connect failed", zap.Error(err))
		}
		defer db.Close()
		repo = ledger.NewRepository(db.Client)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal("migrate failed", zap.Error(err))
		}
	} else {
		log.Warn("DATABASE_URL not set, receipts will not be recorded")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, log)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("worker started", zap.String("queue", cfg.QueueKey), zap.String("export_dir", cfg.ExportDir))
	for msg := range messages {
		handle(ctx, msg, repo, cfg.ExportDir, log)
	}
	log.Info("worker stopped")
}

func handle(ctx context.Context, msg queue.Message, repo *ledger.Repository, exportDir string, log *zap.Logger) {
	if msg.Type != queue.TypeSessionCommitted {
		log.Debug("skipping message", zap.String("type", msg.Type))
		return
	}
	r, err := queue.DecodeReceipt(msg)
	if err != nil {
		log.Error("bad commit event", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	log = log.With(zap.String("session_id", r.SessionID), zap.String("faculty_id", r.FacultyID))

	if repo != nil {
		if _, err := repo.RecordCommit(ctx, r); err != nil {
			log.Error("record receipt failed", zap.Error(err))
		}
	}
	path, err := export.WriteRegister(exportDir, r)
	if err != nil {
		log.Error("write register failed", zap.Error(err))
		return
	}
	log.Info("commit processed", zap.String("register", path), zap.Int("present", r.Tally.Present), zap.Int("absent", r.Tally.Absent))
}
