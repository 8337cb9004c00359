package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exo273/backend-pos/internal/config"
	"github.com/exo273/backend-pos/internal/database"
	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/messaging"
	"github.com/exo273/backend-pos/internal/services/catalog"
	"github.com/exo273/backend-pos/internal/services/events"
	"github.com/exo273/backend-pos/internal/services/menu"
	"github.com/exo273/backend-pos/internal/services/order"
	"github.com/exo273/backend-pos/internal/services/realtime"
)

func main() {
	var (
		mode     = flag.String("mode", "", "Service mode (api-service, events-worker)")
		port     = flag.Int("port", 3000, "HTTP port")
		prefetch = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": *port,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "api-service":
		if err := runAPIService(ctx, cfg, log, *port); err != nil {
			log.Error("service_failed", "API service failed", requestID, err, nil)
			os.Exit(1)
		}
	case "events-worker":
		if err := runEventsWorker(ctx, cfg, log, *prefetch); err != nil {
			log.Error("service_failed", "Events worker failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runAPIService serves the POS HTTP API and the WebSocket channels
func runAPIService(ctx context.Context, cfg *config.Config, log *logger.Logger, port int) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)

	hub := realtime.NewHub(log)
	hubStop := make(chan struct{})
	go hub.Run(hubStop)
	defer close(hubStop)

	catalogStore := catalog.NewStore(db, log)
	menuRepo := menu.NewRepository(db)
	menuService := menu.NewService(menuRepo, catalogStore, log)
	menuHandler := menu.NewHandler(menuService, log)

	orderRepo := order.NewRepository(db)
	orderService := order.NewService(orderRepo, publisher, hub, log)
	orderHandler := order.NewHandler(orderService, log)

	wsHandler := realtime.NewHandler(hub, orderService, log)

	// Periodic retry for settlement events whose publish failed
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := orderService.RepublishSettlements(ctx, logger.GenerateRequestID()); err != nil {
					log.Error("settlement_sweep_failed", "Settlement republish sweep failed", "", err, nil)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	menuHandler.SetupRoutes(mux)
	orderHandler.SetupRoutes(mux)
	wsHandler.SetupRoutes(mux)
	mux.HandleFunc("GET /health", healthCheck(db))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info("service_started", fmt.Sprintf("API service started on port %d", port), requestID, map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// runEventsWorker consumes catalog events from the operations service
func runEventsWorker(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	consumer := messaging.NewConsumer(conn, log, messaging.OperationsQueue, "pos-events-worker", prefetch)

	catalogStore := catalog.NewStore(db, log)
	menuRepo := menu.NewRepository(db)
	propagator := catalog.NewPropagator(menuRepo, log)

	worker := events.NewWorker(consumer, catalogStore, propagator, log)

	if err := worker.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func healthCheck(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy := db.Ping(r.Context()) == nil

		response := map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   "pos-service",
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			response["status"] = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}
