// kbseed loads curated knowledge-base cases from a JSON file, upserts them
// into Postgres, and indexes their embeddings for similarity search.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/config"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/embedding"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/store"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/vectorindex"
)

func main() {
	seedPath := flag.String("file", "seed/knowledge_base.json", "path to the knowledge-base seed file")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		log.Fatalf("read seed file: %v", err)
	}
	var entries []models.KnowledgeBaseEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Fatalf("parse seed file: %v", err)
	}
	if len(entries) == 0 {
		log.Fatalf("seed file %s contains no cases", *seedPath)
	}

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	embedder, err := embedding.NewClient(cfg.ModelEndpoint, cfg.ModelAPIKey, cfg.EmbeddingModel, embedding.DefaultDimension)
	if err != nil {
		log.Fatalf("init embedding client: %v", err)
	}
	index := vectorindex.NewRedisIndex(redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}))

	for _, entry := range entries {
		if entry.CaseID == "" || entry.Title == "" {
			log.Fatalf("seed entry missing case_id or title: %+v", entry)
		}
		entry.IsActive = true

		if err := st.UpsertCase(ctx, entry); err != nil {
			log.Fatalf("upsert %s: %v", entry.CaseID, err)
		}

		vector, err := embedder.Embed(ctx, entry.Description+"\n"+entry.Solution)
		if err != nil {
			log.Fatalf("embed %s: %v", entry.CaseID, err)
		}
		if err := index.Upsert(ctx, entry.CaseID, vector); err != nil {
			log.Fatalf("index %s: %v", entry.CaseID, err)
		}
		log.Printf("seeded %s (%s)", entry.CaseID, entry.Title)
	}
	log.Printf("seeded %d knowledge-base cases", len(entries))
}
