package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/medihub/access-api/internal/config"
	"github.com/medihub/access-api/internal/handler"
	accessHandler "github.com/medihub/access-api/internal/handler/access"
	notificationHandler "github.com/medihub/access-api/internal/handler/notification"
	"github.com/medihub/access-api/internal/middleware"
	"github.com/medihub/access-api/internal/repository/postgres"
	"github.com/medihub/access-api/internal/router"
	accessService "github.com/medihub/access-api/internal/service/access"
	"github.com/medihub/access-api/internal/service/directory"
	notificationService "github.com/medihub/access-api/internal/service/notification"
	"github.com/medihub/access-api/pkg/auth"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/metrics"
	"github.com/medihub/access-api/pkg/validator"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "medihub-access",
		Short:        "Patient record access API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg.Log))
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log)

			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				log.Info("applied migration", "name", name)
			}
			log.Info("migrations complete", "applied", len(applied))
			return nil
		},
	}
}

func newLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Console,
	})
}

func runServer(cfg *config.Config, log *logger.Logger) error {
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, "medihub", "access")

	// Repositories
	store := postgres.NewStore(db)
	userRepo := postgres.NewUserRepository(db)
	recordsRepo := postgres.NewRecordsRepository(db)

	// Services
	dir := directory.NewService(userRepo, cfg.Access.DirectoryCacheTTL)
	ledger := accessService.NewLedger(store, dir, accessService.Config{
		PasskeyTTL:            cfg.Access.PasskeyTTL,
		MaxGenerationAttempts: cfg.Access.MaxGenerationAttempts,
	}, m, log)
	verifier := accessService.NewVerifier(store, dir, recordsRepo, m, log)
	notifications := notificationService.NewService(store.Notifications(), cfg.Notifications.PollInterval, m, log)

	if err := validator.Register(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	authMiddleware := middleware.NewAuthMiddleware(
		auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry),
		cfg.JWT.Enabled,
	)
	if !cfg.JWT.Enabled {
		log.Warn("session validation disabled, path ids are trusted as supplied")
	}

	r := router.NewRouter(
		authMiddleware,
		handler.NewHandler(db, reg),
		accessHandler.NewHandler(ledger, verifier),
		notificationHandler.NewHandler(notifications),
		routerConfig(cfg, reg, log),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited properly")
	return nil
}

func routerConfig(cfg *config.Config, reg prometheus.Registerer, log *logger.Logger) router.RouterConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Security.AllowedOrigins
	}
	if len(cfg.Security.AllowedMethods) > 0 {
		cors.AllowMethods = cfg.Security.AllowedMethods
	}
	if len(cfg.Security.AllowedHeaders) > 0 {
		cors.AllowHeaders = cfg.Security.AllowedHeaders
	}

	rc := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     cors,
		MetricsPrefix:  "medihub_access_http",
		Registerer:     reg,
		Logger:         log,
	}
	if cfg.RateLimit.Enabled {
		rc.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		rc.RateBurst = cfg.RateLimit.Burst
		rc.VerifyPerMin = cfg.RateLimit.VerifyPerMinute
	}
	if rc.Mode == "" {
		rc.Mode = gin.ReleaseMode
	}
	return rc
}
