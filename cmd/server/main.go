package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Kamar-Folarin/feed-sync/internal/api"
	"github.com/Kamar-Folarin/feed-sync/internal/config"
	"github.com/Kamar-Folarin/feed-sync/internal/db"
	"github.com/Kamar-Folarin/feed-sync/internal/events"
	"github.com/Kamar-Folarin/feed-sync/internal/quota"
	"github.com/Kamar-Folarin/feed-sync/internal/reader"
	"github.com/Kamar-Folarin/feed-sync/internal/syncer"
)

// @title Feed Sync API
// @version 1.0
// @description API for synchronizing a Google Reader compatible feed account into a local store
// @host localhost:8080
// @BasePath /api/v1
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	sinks := []events.Sink{events.NewLogSink(logger)}
	if cfg.AMQPURL != "" {
		amqpSink, err := events.NewAMQPSink(events.AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
		})
		if err != nil {
			logger.Fatalf("Failed to connect event sink: %v", err)
		}
		sinks = append(sinks, amqpSink)
	}
	bus := events.NewBus(cfg.Sync.EventBuffer, logger, sinks...)
	defer bus.Close()

	tracker := quota.NewTracker(store, cfg.Reader.Quota, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := reader.NewClient(cfg.Reader, reader.TokenSource(ctx, cfg.Reader), tracker, logger)

	orchestrator := syncer.NewOrchestrator(client, store, bus, cfg.Sync, logger)
	if err := orchestrator.Recover(ctx); err != nil {
		logger.Fatalf("Failed to recover sync runs: %v", err)
	}
	editQueue := syncer.NewEditQueue(client, store, bus, cfg.Sync, logger)
	scheduler := syncer.NewScheduler(orchestrator, cfg.Sync.Interval, logger)

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(orchestrator, editQueue, tracker, store, cfg.Reader.Quota.Service, logger)
	router := api.SetupRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.WithCORS(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// events outlive the workers so the final run state is still delivered
	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		_ = bus.Run(busCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(scheduler.Start(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(editQueue.RunPeriodic(gctx))
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.WithField("signal", sig.String()).Info("Shutting down server...")
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown failed: %v", err)
		}
		if err := orchestrator.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Sync shutdown failed: %v", err)
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server stopped with error: %v", err)
	}

	stopBus()
	<-busDone
	if n := bus.Dropped(); n > 0 {
		logger.WithField("dropped", n).Warn("Events were dropped")
	}
	logger.Info("Server exited properly")
}

func openStore(cfg *config.Config, logger *logrus.Logger) (db.Store, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return db.NewMemoryStore(), nil
	}

	store, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		return nil, err
	}

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, store.Migrate); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
