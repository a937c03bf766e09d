package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daredevil-ai/memchat/internal/api"
	"github.com/daredevil-ai/memchat/internal/config"
	"github.com/daredevil-ai/memchat/internal/core"
	"github.com/daredevil-ai/memchat/internal/docindex"
	"github.com/daredevil-ai/memchat/internal/llm"
	"github.com/daredevil-ai/memchat/internal/memory"
	"github.com/daredevil-ai/memchat/internal/store"
	"github.com/daredevil-ai/memchat/internal/tools"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize the LLM provider
	provider, cleanup, err := newProvider(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	defer cleanup()

	// Long-term memory and the per-conversation document index share the
	// provider for embeddings.
	memoryStore := memory.NewStore(provider)
	documentIndex := docindex.NewIndex(provider)

	baseTools := []tools.Tool{
		tools.NewCurrentTimeTool(time.Now),
		tools.NewWebSearchTool(nil, ""),
		tools.NewWikipediaTool(nil, ""),
	}

	chatService := core.NewChatService(dbStore, memoryStore, provider, documentIndex, baseTools)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(dbStore, dbStore, chatService, documentIndex)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}

// newProvider builds the configured LLM provider. The returned cleanup is a
// no-op for providers without a connection to close.
func newProvider(ctx context.Context) (llm.Provider, func(), error) {
	switch config.AppConfig.LLMProvider {
	case "gemini":
		gemini, err := llm.NewGeminiProvider(ctx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return gemini, gemini.Close, nil
	case "groq":
		groq := llm.NewGroqProvider(
			config.AppConfig.GroqAPIKey,
			config.AppConfig.EmbeddingAPIKey,
			config.AppConfig.EmbeddingBaseURL,
			config.AppConfig.EmbeddingModel,
		)
		return groq, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", config.AppConfig.LLMProvider)
	}
}
