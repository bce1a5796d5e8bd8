package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/config"
	"taskify/backend/internal/database"
	"taskify/backend/internal/handlers"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/services"
	"taskify/backend/internal/storage"
	"taskify/backend/internal/worker"

	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"
)

// app holds the shared dependencies of every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool  *database.DatabasePool
	store *repositories.Store
	redis *redis.Client
	cache cache.Cache
	blobs storage.BlobStore
	queue *worker.JobQueue

	auth        *services.AuthServiceImpl
	attachments *services.AttachmentServiceImpl
	services    handlers.Services

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openDatabase(); err != nil {
		return nil, err
	}
	a.openCache()
	if err := a.openBlobStore(ctx); err != nil {
		return nil, err
	}
	a.wireServices()
	return a, nil
}

func (a *app) openDatabase() error {
	gormLevel := gormlogger.Warn
	if a.cfg.IsProduction() {
		gormLevel = gormlogger.Error
	}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          a.cfg.Database.Driver,
		DSN:             a.cfg.GetDatabaseDSN(),
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: a.cfg.Database.ConnMaxIdleTime,
		LogLevel:        gormLevel,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.pool = pool
	a.store = repositories.NewStore(pool.DB)
	a.closers = append(a.closers, pool.Close)
	a.logger.Info("database connected", "driver", a.cfg.Database.Driver)
	return nil
}

// openCache uses Redis behind an in-process L1 when Redis is enabled and a
// bounded memory cache otherwise.
func (a *app) openCache() {
	if !a.cfg.Redis.Enabled {
		a.cache = cache.NewMemoryCache(10000)
		a.logger.Info("redis disabled, using in-memory cache")
		return
	}

	a.redis = cache.NewRedisClient(cache.RedisOptions{
		Addr:         a.cfg.GetRedisAddr(),
		Password:     a.cfg.Redis.Password,
		DB:           a.cfg.Redis.DB,
		PoolSize:     a.cfg.Redis.PoolSize,
		MinIdleConns: a.cfg.Redis.MinIdleConns,
		MaxRetries:   a.cfg.Redis.MaxRetries,
		DialTimeout:  a.cfg.Redis.DialTimeout,
		ReadTimeout:  a.cfg.Redis.ReadTimeout,
		WriteTimeout: a.cfg.Redis.WriteTimeout,
	})

	// The multi-level cache owns the client and closes it.
	l2 := cache.NewRedisCacheFromClient(a.redis, a.cfg.Redis.KeyPrefix+"cache:")
	a.cache = cache.NewMultiLevelCache(l2, cache.NewCircuitBreaker(cache.DefaultBreakerConfig("redis"), a.logger), a.logger)
	a.queue = worker.NewJobQueue(a.redis, a.cfg.Redis.KeyPrefix+"jobs:", a.cfg.Worker.MaxRetries)
	a.logger.Info("redis enabled", "addr", a.cfg.GetRedisAddr())
}

func (a *app) openBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case "gcs":
		store, err := storage.NewGCSStore(ctx, a.cfg.Storage.GCSBucket, a.cfg.Storage.GCSPrefix, a.cfg.Storage.GCSCredentialsFile)
		if err != nil {
			return err
		}
		a.blobs = store
		a.closers = append(a.closers, store.Close)
	default:
		store, err := storage.NewLocalStore(a.cfg.Storage.LocalDir)
		if err != nil {
			return fmt.Errorf("open local blob store: %w", err)
		}
		a.blobs = store
	}
	a.logger.Info("blob store ready", "driver", a.cfg.Storage.Driver)
	return nil
}

func (a *app) wireServices() {
	authz := services.NewAuthorizationService(a.store, a.cache, a.logger)

	a.attachments = services.NewAttachmentService(a.store, a.blobs, authz, services.AttachmentPolicy{
		MaxUploadBytes:    a.cfg.Storage.MaxUploadBytes,
		AllowedExtensions: a.cfg.Storage.AllowedExtensions,
		OrphanGracePeriod: a.cfg.Storage.OrphanGracePeriod,
	}, a.logger)
	if a.queue != nil {
		a.attachments.WithCleanupQueue(a.queue)
	}

	a.auth = services.NewAuthService(a.store, services.AuthConfig{
		Secret:          a.cfg.Auth.JWTSecret,
		Issuer:          a.cfg.Auth.Issuer,
		Audience:        a.cfg.Auth.Audience,
		AccessTokenTTL:  a.cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: a.cfg.Auth.RefreshTokenTTL,
		BCryptCost:      a.cfg.Auth.BCryptCost,
	})

	a.services = handlers.Services{
		Auth:        a.auth,
		Register:    services.NewRegisterService(a.store, a.cfg.Auth.BCryptCost),
		Projects:    services.NewProjectService(a.store, authz, a.attachments, a.logger),
		Tasks:       services.NewTaskService(a.store, authz, a.attachments, a.logger),
		SubTasks:    services.NewSubTaskService(a.store, authz, a.attachments, a.logger),
		Comments:    services.NewCommentService(a.store, authz),
		Attachments: a.attachments,
		Users:       services.NewUserService(a.store, a.logger),
	}
}

func (a *app) requireQueue() error {
	if a.queue == nil {
		return errors.New("redis is disabled; set REDIS_ENABLED=true to use the job queue")
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close failed", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("resource close failed", "error", err)
		}
	}
	a.closers = nil
}
