package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"biogy.com/biogyapi/internal/bootstrap"
	"biogy.com/biogyapi/internal/config"
	"biogy.com/biogyapi/internal/metrics"
	"biogy.com/biogyapi/internal/server"
	"biogy.com/biogyapi/pkg/database"
	"biogy.com/biogyapi/pkg/logger"
	"biogy.com/biogyapi/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(database.Config{
		Host:            cfg.DBHost,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		Name:            cfg.DBName,
		Port:            cfg.DBPort,
		SSLMode:         cfg.DBSSLMode,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxOpenConns / 2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedAdminUser(db, cfg.AdminUsername, cfg.AdminPassword, log); err != nil {
			log.Fatal("failed to seed admin user", zap.Error(err))
		}
	}

	redisClient := connectRedis(cfg.RedisURL, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	blobStore, err := storage.NewCloudinaryStorage(cfg.CloudinaryURL, cfg.CloudinaryCloudName)
	if err != nil {
		log.Fatal("failed to initialize cloudinary storage", zap.Error(err))
	}

	var meiliClient meilisearch.ServiceManager
	if cfg.MeiliSearchHost != "" {
		meiliClient = meilisearch.New(meiliHost(cfg.MeiliSearchHost), meilisearch.WithAPIKey(cfg.MeiliMasterKey))
	} else {
		log.Warn("MEILISEARCH_HOST not set, topic search falls back to title matching")
	}

	srv := server.NewServer(server.Dependencies{
		Config:    cfg,
		DB:        db,
		Redis:     redisClient,
		Meili:     meiliClient,
		BlobStore: blobStore,
		Metrics:   metrics.New(log),
		Gatherer:  prometheus.DefaultGatherer,
		Logger:    log,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", zap.String("address", httpServer.Addr), zap.String("env", cfg.AppEnv))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server exited with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited gracefully")
}

// connectRedis returns nil when Redis is not configured or unreachable.
// Caching, rate limiting and live notifications are then disabled.
func connectRedis(url string, log *zap.Logger) *redis.Client {
	if url == "" {
		log.Warn("REDIS_URL not set, running without redis")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("invalid REDIS_URL, running without redis", zap.Error(err))
		return nil
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, running without redis", zap.Error(err))
		_ = client.Close()
		return nil
	}

	log.Info("connected to redis")
	return client
}

func meiliHost(host string) string {
	if !strings.HasPrefix(host, "http") {
		return "http://" + host + ":7700"
	}
	return host
}
