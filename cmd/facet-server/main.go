package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facetlabs/facet/internal/agent"
	"github.com/facetlabs/facet/internal/config"
	"github.com/facetlabs/facet/internal/engine"
	"github.com/facetlabs/facet/internal/llm"
	"github.com/facetlabs/facet/internal/server"
	"github.com/facetlabs/facet/internal/sessions"
	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/internal/storage/postgres"
	"github.com/facetlabs/facet/internal/storage/sqlite"
)

// store is the intersection of the storage interfaces both engines
// implement.
type store interface {
	storage.DocumentStore
	storage.SessionStore
	storage.EmbeddingStore
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var st store
	switch cfg.Storage.Engine {
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			log.Fatal("FACET_POSTGRES_DSN is required when storage engine is postgres")
		}
		st, err = postgres.NewStore(cfg.Storage.PostgresDSN)
	case "sqlite", "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		st, err = sqlite.NewStore(cfg.Storage.DataPath + "/facet.db")
	default:
		log.Fatalf("Unknown storage engine: %q", cfg.Storage.Engine)
	}
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entityManager := engine.NewManager(st)
	sessionManager := sessions.NewManager(st)
	sessionManager.StartCleanupLoop(ctx, cfg.Sessions.CleanupInterval, cfg.Sessions.MaxAge)

	llmCfg := llm.Config{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.OpenAIAPIKey,
		Timeout:        cfg.LLM.Timeout,
		Model:          cfg.LLM.OpenAIModel,
		EmbeddingModel: cfg.LLM.OpenAIEmbeddingModel,
	}
	if cfg.LLM.Provider == "ollama" || cfg.LLM.Provider == "" {
		llmCfg.BaseURL = cfg.LLM.OllamaURL
		llmCfg.Model = cfg.LLM.OllamaModel
		llmCfg.EmbeddingModel = cfg.LLM.OllamaEmbeddingModel
	}

	textGen, err := llm.NewTextGenerator(llmCfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	var similarity *engine.SimilarityService
	if cfg.LLM.EnableEmbeddings {
		embedder, err := llm.NewEmbeddingGenerator(llmCfg)
		if err != nil {
			log.Fatalf("Failed to initialize embedding client: %v", err)
		}
		similarity = engine.NewSimilarityService(embedder, st)
	}

	prompts := llm.NewLibrary()
	if cfg.Prompts.Path != "" {
		prompts, err = llm.NewLibraryFromFile(cfg.Prompts.Path)
		if err != nil {
			log.Fatalf("Failed to load prompt overrides: %v", err)
		}
		defer prompts.Close()
	}

	chatAgent := agent.New(textGen, prompts, sessionManager, entityManager, similarity)

	addr, _, err := server.Start(ctx, cfg, server.Deps{
		Entities:   entityManager,
		Similarity: similarity,
		Agent:      chatAgent,
		Sessions:   sessionManager,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Facet API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second)
}
