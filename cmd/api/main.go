package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/api"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/config"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/embedding"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/queue"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/ratelimit"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/retrieval"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/storage"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/store"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/vectorindex"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
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
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	uploads, err := storage.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init archive storage: %v", err)
	}

	embedder, err := embedding.NewClient(cfg.ModelEndpoint, cfg.ModelAPIKey, cfg.EmbeddingModel, embedding.DefaultDimension)
	if err != nil {
		log.Fatalf("init embedding client: %v", err)
	}
	searcher := retrieval.NewEngine(vectorindex.NewRedisIndex(redisClient), st, cfg.SimilarLimit, cfg.MinSimilarity)

	server := api.New(cfg, st, q, uploads, embedder, searcher, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
