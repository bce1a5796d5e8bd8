package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"taskify/backend/internal/handlers"
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/monitoring"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if migrate {
					if err := a.pool.Migrate(); err != nil {
						return err
					}
					a.logger.Info("database migrated")
				}
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply schema migrations before serving")
	return cmd
}

// newRouter assembles the gin engine. The returned limiter is nil when rate
// limiting is disabled.
func newRouter(a *app) (*gin.Engine, *middleware.RateLimiter) {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(a.logger),
		middleware.RecoveryWithLog(),
		cors.New(corsConfig(a.cfg.Server.AllowedOrigins)),
		otelgin.Middleware("taskify-api"),
		monitoring.MetricsMiddleware(),
	)

	health := monitoring.NewHealthChecker(5 * time.Second)
	health.Register("database", a.pool.Ping)
	health.Register("blob_store", a.blobs.Ping)
	health.Register("cache", a.cache.Health)
	if a.redis != nil {
		health.Register("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}

	r.GET("/health", health.HealthHandler())
	r.GET("/health/live", monitoring.LivenessHandler())
	r.GET("/health/ready", health.ReadinessHandler())
	r.GET("/metrics", monitoring.MetricsHandler())

	var limiter *middleware.RateLimiter
	var authLimit gin.HandlerFunc
	if a.cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(a.cfg.RateLimit.RequestsPerMin, a.cfg.RateLimit.BurstSize, a.cfg.RateLimit.CleanupInterval)
		authLimit = limiter.Middleware()
	}

	h := handlers.New(a.services)
	h.Transfer = middleware.TransferDeadline(a.cfg.Server.TransferTimeout)
	handlers.RegisterRoutes(r, h, a.auth, authLimit)
	return r, limiter
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Disposition", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func serve(ctx context.Context, a *app) error {
	router, limiter := newRouter(a)

	if limiter != nil && a.cfg.RateLimit.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(a.cfg.RateLimit.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := limiter.Cleanup(); n > 0 {
						a.logger.Debug("rate limiter entries evicted", "count", n)
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:         a.cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info("http server stopped")
	return nil
}
