package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/geoclash/maptiles/internal/fetcher"
	v1 "github.com/geoclash/maptiles/internal/infrastructure/http/v1"
	"github.com/geoclash/maptiles/internal/infrastructure/http/v1/handler"
	"github.com/geoclash/maptiles/internal/provider"
	"github.com/geoclash/maptiles/internal/repository/cache"
	"github.com/geoclash/maptiles/internal/usecase"
	"github.com/geoclash/maptiles/pkg/config"
	"github.com/geoclash/maptiles/pkg/logger"
	"github.com/geoclash/maptiles/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)

	l.Info("starting tile service", "config", cfg)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
	}

	providerCfg := buildProviderConfig(cfg.Tiles, l)

	var sharedStore cache.Store
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			l.Fatal("failed to initialize redis store", "error", err)
		}
		defer redisStore.Close()
		sharedStore = redisStore
		l.Info("redis tile store enabled", "addr", cfg.Redis.Addr)
	}

	var offlineStore cache.Store
	if cfg.Offline.Enabled {
		sqliteStore, err := cache.NewSQLiteStore(cfg.Offline.Path, l)
		if err != nil {
			l.Fatal("failed to initialize offline store", "error", err)
		}
		defer sqliteStore.Close()
		offlineStore = sqliteStore
	}

	memCache := cache.NewMemoryCache(cfg.Tiles.CacheMaxTiles, cfg.Tiles.CacheExpiry)

	f := fetcher.New(fetcher.Options{
		MaxConcurrent: cfg.Tiles.MaxConcurrentDownloads,
		MaxAttempts:   cfg.Tiles.RetryAttempts,
		RetryDelay:    cfg.Tiles.RetryDelay,
		Timeout:       cfg.Tiles.RequestTimeout,
		UserAgent:     cfg.Tiles.UserAgent,
	}, sharedStore, l)

	tileService := usecase.NewTileService(providerCfg, usecase.Options{
		MinZoom: cfg.Tiles.MinZoom,
		MaxZoom: cfg.Tiles.MaxZoom,
	}, memCache, f, offlineStore, l)

	validate := validator.New()
	h := handler.NewHandler(validate, tileService)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.Server.ReadTimeout,
		WriteTimeout: cfg.HTTP.Server.WriteTimeout,
		IdleTimeout:  cfg.HTTP.Server.IdleTimeout,
	}

	go func() {
		l.Info("starting http server", "port", cfg.HTTP.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Fatal("server forced to shutdown", "error", err)
	}

	l.Info("server stopped")
}

func buildProviderConfig(t config.Tiles, l logger.Logger) provider.Config {
	p, ok := provider.ParseProvider(t.Provider)
	if !ok {
		l.Warn("unknown tile provider, falling back to osm", "provider", t.Provider)
	}
	style, ok := provider.ParseStyle(t.Style)
	if !ok {
		l.Warn("unknown tile style, falling back to streets", "style", t.Style)
	}

	return provider.Config{
		Provider:          p,
		Style:             style,
		TileSize:          t.TileSize,
		MapboxKey:         t.MapboxKey,
		GoogleKey:         t.GoogleKey,
		MapTilerKey:       t.MapTilerKey,
		CustomURLTemplate: t.CustomURLTemplate,
	}
}
