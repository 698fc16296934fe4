package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/auth"
	"facultyportal/internal/backend"
	"facultyportal/internal/config"
	"facultyportal/internal/draft"
	"facultyportal/internal/httpmiddleware"
	"facultyportal/internal/ledger"
	"facultyportal/internal/logging"
	"facultyportal/internal/portal"
	"facultyportal/internal/queue"
	"facultyportal/internal/store"
)

func main() {
	cfg := config.Load()
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logging.New(cfg.Production(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	for _, w := range cfg.Warnings {
		log.Warn("config fallback", zap.String("detail", w))
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

// draftStore is the configured store with its health probe.
type draftStore struct {
	attendance.DraftStore
	healthy func(context.Context) bool
}

func openDrafts(cfg config.App, redisClient *store.Redis, log *zap.Logger) (draftStore, func(), error) {
	switch cfg.DraftBackend {
	case "redis":
		ds := draftStore{
			DraftStore: draft.NewRedis(redisClient.Client, cfg.DraftRetention, log),
			healthy:    redisClient.Healthy,
		}
		return ds, func() {}, nil
	case "memory":
		mem := draft.NewMemory(log)
		reaper, err := draft.StartReaper(cfg.ReaperSchedule, cfg.DraftRetention, mem, log)
		if err != nil {
			return draftStore{}, nil, err
		}
		ds := draftStore{
			DraftStore: mem,
			healthy:    func(context.Context) bool { return true },
		}
		return ds, func() { reaper.Stop() }, nil
	default:
		db, err := store.NewSQLite(cfg.DraftPath)
		if err != nil {
			return draftStore{}, nil, err
		}
		lite, err := draft.NewSQLite(db, log)
		if err != nil {
			db.Close()
			return draftStore{}, nil, err
		}
		reaper, err := draft.StartReaper(cfg.ReaperSchedule, cfg.DraftRetention, lite, log)
		if err != nil {
			db.Close()
			return draftStore{}, nil, err
		}
		ds := draftStore{
			DraftStore: lite,
			healthy:    func(ctx context.Context) bool { return db.PingContext(ctx) == nil },
		}
		return ds, func() {
			<-reaper.Stop().Done()
			db.Close()
		}, nil
	}
}

// openLedger connects to Postgres and creates the receipts table, so the api
// can serve receipts before any worker has run.
func openLedger(ctx context.Context, url string) (*ledger.Repository, *store.DB, error) {
	db, err := store.NewDB(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	repo := ledger.NewRepository(db.Client)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx := context.Background()

	var receipts portal.ReceiptLister
	var db *store.DB
	if cfg.DatabaseURL != "" {
		repo, opened, err := openLedger(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn("receipts disabled", zap.Error(err))
		} else {
			db = opened
			defer db.Close()
			receipts = repo
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	drafts, closeDrafts, err := openDrafts(cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer closeDrafts()

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, log)
	} else {
		// no worker shares this process, so drain it into the log
		mem := queue.NewInMemory(64)
		go logCommits(ctx, mem, log)
		q = mem
	}

	client := backend.New(cfg.BackendURL, cfg.BackendTimeout, log)
	submitter := attendance.NewSubmitter(client, drafts, queue.NewCommitPublisher(q), log)
	manager := attendance.NewManager(client, drafts, submitter, log)

	registry := portal.NewRegistry()
	sweeper, err := registry.StartSweeper(cfg.SessionIdleTTL, log)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	h := portal.NewHandler(portal.Options{
		Manager:   manager,
		Schedules: client,
		Receipts:  receipts,
		Registry:  registry,
		Location:  cfg.Location,
		Logger:    log,
	})

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	pruner := limiter.StartPruner(10*time.Minute, time.Hour)
	defer pruner.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(portal.RequestID())
	if cfg.Production() {
		r.Use(portal.AccessLog(log, "/healthz", "/metrics"))
	} else {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/healthz", "/metrics"}}))
	}
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(portal.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		hctx := c.Request.Context()
		draftsOK := drafts.healthy(hctx)
		redisOK := redisClient.Healthy(hctx)
		dbOK := db != nil && db.Client.PingContext(hctx) == nil
		status := http.StatusOK
		if !draftsOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"drafts":   draftsOK,
			"redis":    redisOK,
			"db":       dbOK,
			"sessions": registry.Len(),
		})
	})

	v1 := r.Group("/v1",
		auth.FacultyAuth(cfg.JWTSigningKey, cfg.JWTIssuer),
		limiter.GinMiddleware(auth.FacultyID))
	h.Register(v1)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("drafts", cfg.DraftBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

func logCommits(ctx context.Context, q queue.Queue, log *zap.Logger) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Error("commit log consumer failed", zap.Error(err))
		return
	}
	for msg := range msgs {
		r, err := queue.DecodeReceipt(msg)
		if err != nil {
			continue
		}
		log.Info("commit event", zap.String("session_id", r.SessionID), zap.Int("total", r.Tally.Total))
	}
}
