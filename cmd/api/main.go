package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"debiasapi/docs"
	"debiasapi/internal/config"
	"debiasapi/internal/database"
	"debiasapi/internal/database/migration"
	handlers "debiasapi/internal/http/handler"
	"debiasapi/internal/http/middleware"
	"debiasapi/internal/integrations/classifier"
	"debiasapi/internal/integrations/llm"
	"debiasapi/internal/logger"
	"debiasapi/internal/otel"
	"debiasapi/internal/repository"
	"debiasapi/internal/repository/memory"
	"debiasapi/internal/repository/postgres"
	redisrepo "debiasapi/internal/repository/redis"
	"debiasapi/internal/review"
	"debiasapi/internal/service"
	"debiasapi/internal/storage"
	"debiasapi/internal/store"
)

// @title Debias Review API
// @version 1.0
// @description Human-in-the-loop review of bias flagged sentences.
// @BasePath /
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid_config", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal("tracing_init_failed", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := service.NewMetrics(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", "error", err.Error())
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", "error", err.Error())
	}

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal("session_store_init_failed", "store", cfg.Store, "error", err.Error())
	}
	defer closeRepo()

	sessions := store.New(repo,
		store.WithGrace(cfg.Review.GracePeriod),
		store.WithLogger(log),
		store.WithSweepObserver(metrics.Swept),
	)
	go sessions.Run(ctx, cfg.Review.SweepInterval)

	cls, err := classifier.NewClient(cfg.Classifier.URL, classifier.WithAPIKey(cfg.Classifier.APIKey))
	if err != nil {
		log.Fatal("classifier_init_failed", "error", err.Error())
	}
	prompts, err := llm.LoadPrompts(cfg.LLM.PromptsFile)
	if err != nil {
		log.Fatal("prompts_load_failed", "path", cfg.LLM.PromptsFile, "error", err.Error())
	}
	suggester, err := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithPrompts(prompts),
	)
	if err != nil {
		log.Fatal("llm_init_failed", "error", err.Error())
	}

	engine := review.NewEngine(cls, suggester, review.Policy{
		ConfidenceThreshold: cfg.Review.ConfidenceThreshold,
		MaxRegenerations:    cfg.Review.MaxRegenerations,
		ClassifyTimeout:     cfg.Review.ClassifyTimeout,
		SuggestTimeout:      cfg.Review.SuggestTimeout,
		Concurrency:         cfg.Review.ClassifyConcurrency,
	})

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithSessionTTL(cfg.Review.SessionTTL),
		service.WithMaxDocumentBytes(cfg.Review.MaxDocumentBytes),
	}
	if cfg.MinIO.Endpoint != "" {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.Fatal("object_storage_init_failed", "error", err.Error())
		}
		svcOpts = append(svcOpts, service.WithArchive(objStore))
	} else {
		log.Info("object_storage_disabled", "reason", "MINIO_ENDPOINT not set")
	}
	svc := service.NewReviewService(engine, sessions, svcOpts...)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    cfg.Review.MaxDocumentBytes + 1<<20,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())
	app.Use(middleware.Owner())

	handlers.RegisterRoutes(app, svc, reg)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server_starting", "addr", addr, "store", cfg.Store)
		serveErr <- app.Listen(addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("server_failed", "error", err.Error())
		}
	case <-ctx.Done():
		log.Info("server_stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", "error", err.Error())
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing_shutdown_failed", "error", err.Error())
	}
}

// openRepository selects the session backend named by SESSION_STORE.
func openRepository(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (repository.SessionRepository, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		rdb, err := redisrepo.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		log.Info("session_store_ready", "store", cfg.Store, "redis_addr", cfg.Redis.Addr)
		repo := redisrepo.NewSessionRedis(rdb, cfg.Redis.KeyPrefix, cfg.Review.GracePeriod)
		return repo, func() { _ = rdb.Close() }, nil

	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("session_store_ready", "store", cfg.Store, "db_host", cfg.Database.Host)
		return postgres.NewSessionPostgres(db), closeDB(db), nil

	default:
		log.Info("session_store_ready", "store", config.StoreMemory)
		return memory.NewSessionMemory(), func() {}, nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}
