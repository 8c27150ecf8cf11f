package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Blaisesa/notiq/internal/app"
	"github.com/Blaisesa/notiq/internal/blob"
	"github.com/Blaisesa/notiq/internal/config"
	"github.com/Blaisesa/notiq/internal/export"
	"github.com/Blaisesa/notiq/internal/identity"
	"github.com/Blaisesa/notiq/internal/logger"
	"github.com/Blaisesa/notiq/internal/search"
	"github.com/Blaisesa/notiq/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Log)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DB.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.DB.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	var provider identity.Provider
	if strings.TrimSpace(cfg.Auth.RedisURL) != "" {
		log.Info().Msg("resolving tokens through redis sessions")
		redisProvider, err := identity.NewRedisProvider(cfg.Auth.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisProvider.Close()
		provider = redisProvider
	} else {
		log.Info().Msg("resolving tokens as JWTs")
		provider = identity.NewJWTProvider(cfg.Auth.JWTSecret)
	}

	fallback := search.NewPgFallback(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.Search.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliAPIKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, fallback, log)
	searchService.ReindexAll(ctx)

	var uploader blob.Uploader
	if strings.TrimSpace(cfg.Blob.Endpoint) != "" {
		minioUploader, err := blob.NewMinioUploader(ctx, cfg.Blob)
		if err != nil {
			log.Fatal().Err(err).Msg("blob store connection failed")
		}
		uploader = minioUploader
	} else {
		log.Warn().Msg("no blob store configured, uploads will fail")
	}

	service := app.NewService(dataStore, provider, searchService, uploader, export.NewService(), log)

	httpServer := app.NewHTTPServer(service, cfg.Server.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("notiq api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
