package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"vectorloom/features/pipeline"
	"vectorloom/features/tenant"
	"vectorloom/features/webhook"
	"vectorloom/internal/adapter/gemini"
	"vectorloom/internal/adapter/openai"
	"vectorloom/internal/config"
	"vectorloom/internal/embedding"
	"vectorloom/internal/logger"
	"vectorloom/internal/middleware"
	"vectorloom/internal/tenantstore"
	"vectorloom/internal/worker"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/panjf2000/ants/v2"
)

func main() {
	// Structured logger with correlation ids pulled from context
	slogHandler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(slogHandler))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Embedding Providers
	pool, err := ants.NewPool(cfg.EmbedConcurrency)
	if err != nil {
		slog.Error("failed to create embedding worker pool", "error", err)
		os.Exit(1)
	}
	defer pool.Release()

	registry := embedding.NewRegistry()
	if cfg.OpenAIAPIKey != "" {
		for _, model := range []string{"text-embedding-3-small", "text-embedding-3-large"} {
			client := openai.NewClient(model, cfg.OpenAIAPIKey, pool)
			client.SetBaseURL(cfg.OpenAIBaseURL)
			registry.Register(client)
		}
	}
	if cfg.GeminiAPIKey != "" {
		geminiProvider, err := gemini.NewProvider(context.Background(), "gemini-embedding-001", cfg.GeminiAPIKey, pool)
		if err != nil {
			slog.Error("failed to create gemini provider", "error", err)
			os.Exit(1)
		}
		defer geminiProvider.Close()
		registry.Register(geminiProvider)
	}

	// 5. NSQ Producer
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// NSQ creates topics lazily on publish; consumers querying lookupd 404
	// until then, so pre-create over the nsqd http api.
	host, _, _ := net.SplitHostPort(cfg.NSQDHost)
	if host == "" {
		host = cfg.NSQDHost
	}
	topicURL := fmt.Sprintf("http://%s:4151/topic/create?topic=%s", host, webhook.TopicEntityChanged)
	go func() {
		time.Sleep(2 * time.Second)
		resp, err := http.Post(topicURL, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create topic", "error", err, "url", topicURL)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == 200 {
			slog.Info("topic pre-created successfully", "topic", webhook.TopicEntityChanged)
		}
	}()

	// 6. Features
	store := tenantstore.NewStore(db)
	ledger := pipeline.NewPostgresLedger(db)

	tenantRepo := tenant.NewPostgresRepo(db)
	tenantService := tenant.NewService(tenantRepo)
	tenantHandler := tenant.NewHandler(tenantService)

	webhookService := webhook.NewService(tenantService, store, nsqProducer)
	webhookHandler := webhook.NewHandler(webhookService)

	orchestrator := pipeline.NewOrchestrator(ledger, store, registry)
	reconciler := pipeline.NewReconciler(ledger, store, registry)
	pipelineHandler := pipeline.NewHandler(orchestrator, reconciler)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("GET /tenants", middleware.CorrelationID(enableCORS(tenantHandler.List)))
	http.Handle("POST /tenants", middleware.CorrelationID(enableCORS(tenantHandler.Create)))
	http.Handle("GET /tenants/{schema}", middleware.CorrelationID(enableCORS(tenantHandler.Get)))
	http.Handle("PUT /tenants/{schema}", middleware.CorrelationID(enableCORS(tenantHandler.Update)))

	http.Handle("POST /webhooks/entity-changed", middleware.CorrelationID(http.HandlerFunc(webhookHandler.EntityChanged)))

	// The external scheduler hits these; runs are stateless and return a
	// summary. Space triggers a few minutes apart, overlapping runs on the
	// same tenant are not serialized here.
	http.Handle("POST /pipeline/generation/run", middleware.CorrelationID(http.HandlerFunc(pipelineHandler.RunGeneration)))
	http.Handle("POST /pipeline/reconciliation/run", middleware.CorrelationID(http.HandlerFunc(pipelineHandler.RunReconciliation)))

	// 7. Change Consumer
	changeConsumer := worker.NewChangeConsumer(ledger)
	consumer, err := nsq.NewConsumer(webhook.TopicEntityChanged, "ledger", nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
	} else {
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			return changeConsumer.HandleMessage(m)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
		} else {
			slog.Info("NSQ change consumer connected")
		}
	}

	// 8. Start Server
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
