package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/analyzer"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/config"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/embedding"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/pipeline"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/queue"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/retrieval"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/storage"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/store"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/telemetry"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/vectorindex"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	q := queue.NewRedisQueue(cfg)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	files, err := storage.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init archive storage: %v", err)
	}

	embedder, err := embedding.NewClient(cfg.ModelEndpoint, cfg.ModelAPIKey, cfg.EmbeddingModel, embedding.DefaultDimension)
	if err != nil {
		log.Fatalf("init embedding client: %v", err)
	}
	retriever := retrieval.NewEngine(vectorindex.NewRedisIndex(redisClient), st, cfg.SimilarLimit, cfg.MinSimilarity)
	model, err := analyzer.NewClient(cfg.ModelEndpoint, cfg.ModelAPIKey, cfg.ModelName)
	if err != nil {
		log.Fatalf("init model client: %v", err)
	}

	processor := pipeline.NewProcessor(cfg, st, q, files, embedder, retriever, model)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with workers=%d visibility=%s retries=%d", cfg.WorkerCount, cfg.VisibilityTimeout, cfg.RetryAttempts)
	if err := processor.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("worker stopped: %v", err)
	}
}
