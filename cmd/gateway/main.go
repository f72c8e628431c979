// Command gateway runs the unified search gateway: one normalized HTTP
// search API in front of Elasticsearch, OpenSearch, Meilisearch, and
// Typesense indexes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CogappLabs/search-gateway/internal/cache"
	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/internal/handlers"
	"github.com/CogappLabs/search-gateway/internal/logging"
	"github.com/CogappLabs/search-gateway/internal/server"
	"github.com/CogappLabs/search-gateway/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	addr := flag.String("addr", "", "override listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	var c cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis cache: %v", err)
		}
		c = redisCache
	}

	svc, err := service.New(cfg, c, logger)
	if err != nil {
		log.Fatalf("build gateway: %v", err)
	}

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(handlers.New(svc, logger), cfg.APIKey, cfg.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("search gateway listening",
			"addr", listenAddr,
			"indexes", len(cfg.Indexes),
			"cache", svc.CacheStatus(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", logging.Error(err))
	}
}
