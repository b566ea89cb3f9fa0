package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/consumers"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/events"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/handler"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/config"
	"github.com/pharmtrace/pharmtrace-backend/pkg/database"
	"github.com/pharmtrace/pharmtrace-backend/pkg/httputil"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
	"github.com/pharmtrace/pharmtrace-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("tracking-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("tracking-service", cfg.Server.Environment)
	log.Info().Msg("starting Tracking Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewTrackingEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	itemRepo := repository.NewProductItemRepository(db)
	invRepo := repository.NewInventoryRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	scanRepo := repository.NewScanRepository(db)
	assocRepo := repository.NewAssociationRepository(db)

	// Initialize services
	ledgerService := service.NewLedgerService(invRepo, txRepo, db, publisher, log)
	allocationService := service.NewAllocationService(invRepo, txRepo, orderRepo, db, publisher, log)
	matcherService := service.NewMatcherService(itemRepo, invRepo, log)
	resolverService := service.NewResolverService(itemRepo, orderRepo, assocRepo, publisher, log)
	reconciliationService := service.NewReconciliationService(scanRepo, itemRepo, orderRepo, assocRepo, publisher, log)
	ingestionService := service.NewIngestionService(itemRepo, ledgerService, resolverService, log)
	statsService := service.NewStatsService(invRepo, txRepo, cfg.Sweep.ExpiringWithin, log)

	// Initialize handlers
	inventoryHandler := handler.NewInventoryHandler(ledgerService, log)
	allocationHandler := handler.NewAllocationHandler(allocationService, log)
	scanHandler := handler.NewScanHandler(reconciliationService, log)
	associationHandler := handler.NewAssociationHandler(resolverService, log)
	identityHandler := handler.NewIdentityHandler(matcherService, log)
	dashboardHandler := handler.NewDashboardHandler(statsService, log)

	// Start EPCIS event consumer
	epcisConsumer, err := consumers.NewEpcisEventConsumer(rmq, ingestionService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create epcis event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := epcisConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start epcis event consumer")
	}

	// Start expiry sweeper
	var sweeper *service.ExpirySweeper
	if cfg.Sweep.Enabled {
		sweeper = service.NewExpirySweeper(invRepo, txRepo, db, publisher, cfg.Sweep.Interval, log)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://app.pharmtrace.io"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "tracking-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/tracking", func(r chi.Router) {
		r.Use(httputil.Auth(&cfg.JWT))

		// Identifier codec and barcode parsing
		r.Route("/codes", func(r chi.Router) {
			r.Get("/gtin", identityHandler.ConvertNDC)
			r.Get("/ndc", identityHandler.ConvertGTIN)
			r.Post("/parse", identityHandler.ParseBarcode)
		})

		// Product item lookups
		r.Route("/product-items", func(r chi.Router) {
			r.Get("/lookup", identityHandler.FindBySGTIN)
			r.Get("/lot", identityHandler.FindByLot)
			r.Get("/", identityHandler.ListByFile)
		})

		// Inventory lifecycle
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", inventoryHandler.List)
			r.Post("/", inventoryHandler.Receive)
			r.Get("/lookup", inventoryHandler.Lookup)
			r.Get("/availability", allocationHandler.Availability)
			r.Get("/{id}", inventoryHandler.Get)
			r.Post("/{id}/status", inventoryHandler.ChangeStatus)
			r.Post("/{id}/transfer", inventoryHandler.Transfer)
			r.Get("/{id}/transactions", inventoryHandler.History)
		})

		// Allocation and shipment
		r.Post("/allocations", allocationHandler.Allocate)
		r.Post("/sales-orders/{id}/ship", allocationHandler.Ship)

		// Validation sessions and scans
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", scanHandler.StartSession)
			r.Get("/{id}", scanHandler.GetSession)
			r.Post("/{id}/scans", scanHandler.RecordScan)
			r.Get("/{id}/scans", scanHandler.ListScans)
			r.Post("/{id}/complete", scanHandler.CompleteSession)
		})

		// EPCIS file associations
		r.Post("/associations/search", associationHandler.Search)
		r.Route("/files/{fileId}", func(r chi.Router) {
			r.Get("/associations", associationHandler.ListByFile)
			r.Post("/associations", associationHandler.Confirm)
			r.Post("/associations/resolve", associationHandler.Resolve)
		})
		r.Route("/purchase-orders/{id}", func(r chi.Router) {
			r.Get("/associations", associationHandler.ListByPO)
			r.Get("/sessions", scanHandler.ListSessionsByPO)
		})

		// Dashboard
		r.Get("/dashboard/stats", dashboardHandler.GetStats)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers and the sweeper
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
