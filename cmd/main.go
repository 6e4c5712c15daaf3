package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"echo-manor/internal/api"
	"echo-manor/internal/config"
	"echo-manor/internal/director"
	"echo-manor/internal/generation"
	"echo-manor/internal/session"
	"echo-manor/internal/tension"
)

func main() {
	configPath := flag.String("config", "", "directory holding config.yaml (default: working directory)")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		log.Fatalf("build backend: %v", err)
	}

	cacheFor := buildCacheFactory(cfg)

	factory := func(seed int64) (*director.Director, error) {
		return director.New(backend, cacheFor(), director.Config{
			Seed:        seed,
			TemplateDir: cfg.Content.TemplateDir,
			EventBuffer: cfg.Session.EventBuffer,
			Tension: tension.Params{
				MinEventInterval: cfg.Tension.MinEventInterval,
				MaxEventInterval: cfg.Tension.MaxEventInterval,
				SourceDecayRate:  cfg.Tension.SourceDecayRate,
			},
			Generation: generation.Config{
				Model:      cfg.Generation.Model,
				MaxTokens:  cfg.Generation.MaxTokens,
				QueueSize:  cfg.Generation.QueueSize,
				MemorySize: cfg.Generation.MemorySize,
			},
		})
	}

	manager := session.NewManager(factory, cfg.Session.TickInterval, log.Default())
	server := api.NewServer(manager, log.Default())

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.Routes(),
	}

	go func() {
		log.Printf("[Main] listening on %s (provider %s, cache %s)",
			cfg.Addr(), cfg.Generation.Provider, cfg.Cache.Backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] http shutdown: %v", err)
	}

	manager.StopAll()
}

// buildBackend selects the generative provider from config.
func buildBackend(cfg *config.Config) (generation.Backend, error) {
	if cfg.Generation.APIKey == "" {
		return nil, fmt.Errorf("generation api key is required (set %s)", keyHint(cfg.Generation.Provider))
	}

	switch cfg.Generation.Provider {
	case "gemini":
		return generation.NewGeminiBackend(context.Background(), cfg.Generation.APIKey, cfg.Generation.Model)
	default:
		return generation.NewHTTPBackend(generation.HTTPBackendConfig{
			APIURL: cfg.Generation.APIURL,
			APIKey: cfg.Generation.APIKey,
		}), nil
	}
}

func keyHint(provider string) string {
	if provider == "gemini" {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// buildCacheFactory returns a per-session cache constructor. The Redis
// cache is shared across sessions so identical prompts are reused
// between players; the in-memory cache stays per session.
func buildCacheFactory(cfg *config.Config) func() generation.Cache {
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		shared := generation.NewRedisCache(client, cfg.Cache.Prefix, cfg.Cache.TTL)
		return func() generation.Cache { return shared }
	}
	return func() generation.Cache { return generation.NewMemoryCache() }
}
