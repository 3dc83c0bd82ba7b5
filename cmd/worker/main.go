package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/medihub/access-api/internal/config"
	"github.com/medihub/access-api/internal/email"
	"github.com/medihub/access-api/internal/handler"
	"github.com/medihub/access-api/internal/repository/postgres"
	sweeper "github.com/medihub/access-api/internal/worker"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/messaging/redis"
	"github.com/medihub/access-api/pkg/metrics"
	"github.com/medihub/access-api/pkg/worker"
)

func main() {
	var (
		configPath string
		healthPort int
	)

	rootCmd := &cobra.Command{
		Use:          "medihub-worker",
		Short:        "Outbox delivery and grant sweeping",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg, healthPort)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.Flags().IntVar(&healthPort, "health-port", 8081, "port for health and metrics endpoints")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, healthPort int) error {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	}).WithFields(map[string]interface{}{"worker_id": workerID()})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(reg, "medihub", "worker")

	store := postgres.NewStore(db)

	var sinks []worker.Sink
	if cfg.Redis.Enabled {
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), log.Zerolog())
		if err != nil {
			return fmt.Errorf("failed to create Redis broker: %w", err)
		}
		defer broker.Close()
		sinks = append(sinks, worker.BrokerSink{Broker: broker})
	}
	if cfg.Email.Enabled {
		sinks = append(sinks, worker.EmailSink{Mailer: email.NewSMTPService(cfg.Email)})
	}
	if len(sinks) == 0 {
		log.Warn("no outbox sinks enabled, events will be marked processed without delivery")
	}

	processor, err := worker.NewOutboxProcessor(store, sinks, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, log, m)
	if err != nil {
		return fmt.Errorf("invalid outbox configuration: %w", err)
	}

	sweep := sweeper.NewSweepWorker(store, sweeper.SweepConfig{
		Interval:              cfg.Sweep.Interval,
		BatchSize:             cfg.Sweep.BatchSize,
		NotificationRetention: cfg.Notifications.Retention,
		OutboxRetention:       cfg.Outbox.Retention,
	}, log, m)

	health := healthServer(healthPort, handler.NewHandler(db, reg))
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "health check server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sweep.Start(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return health.Shutdown(shutdownCtx)
}

func healthServer(port int, h *handler.Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	h.RegisterRoutes(&engine.RouterGroup)
	engine.GET("/metrics", h.MetricsHandler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
