package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andalan-hq/be-travel-approvals/internal/client"
	"github.com/andalan-hq/be-travel-approvals/internal/handler"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/config"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/logger"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/middleware"
	natsclient "github.com/andalan-hq/be-travel-approvals/internal/platform/nats"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
	"github.com/andalan-hq/be-travel-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Travel Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	store := repository.NewPGStore(db)

	// Initialize NATS (optional — an empty URL disables notifications)
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := natsclient.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		notifier = client.NewNotificationPublisher(nc, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set, workflow notifications disabled")
	}

	// Initialize services
	verifier := service.NewVerifier()
	builder := service.NewChainBuilder(store, service.ChainPolicy{
		SeniorDirectorMinAmount: cfg.Approval.SeniorDirectorMinAmount,
		ExecutiveMinAmount:      cfg.Approval.ExecutiveMinAmount,
	}, log)
	approvalService := service.NewApprovalService(store, builder, verifier, notifier, log)
	bailoutService := service.NewBailoutService(store, notifier, log)
	requestService := service.NewRequestService(store, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(requestService, approvalService, bailoutService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Travel request routes
	mux.HandleFunc("/api/v1/travel-requests", methodRouter(map[string]http.HandlerFunc{
		http.MethodPost: httpHandler.CreateTravelRequest,
	}))
	mux.HandleFunc("/api/v1/travel-requests/get", httpHandler.GetTravelRequest)

	// Claim routes
	mux.HandleFunc("/api/v1/claims", methodRouter(map[string]http.HandlerFunc{
		http.MethodPost: httpHandler.CreateClaim,
	}))
	mux.HandleFunc("/api/v1/claims/get", httpHandler.GetClaim)

	// Approval workflow routes
	mux.HandleFunc("/api/v1/submit", httpHandler.Submit)
	mux.Handle("/api/v1/approvals/act",
		middleware.RateLimit(cfg.Server.ActRatePerMinute, cfg.Server.ActRateBurst)(http.HandlerFunc(httpHandler.ActOnApproval)))
	mux.HandleFunc("/api/v1/approvals", httpHandler.ListApprovals)
	mux.HandleFunc("/api/v1/audit", httpHandler.GetAuditTrail)

	// Bailout routes
	mux.HandleFunc("/api/v1/bailouts", methodRouter(map[string]http.HandlerFunc{
		http.MethodPost: httpHandler.CreateBailout,
	}))
	mux.HandleFunc("/api/v1/bailouts/get", httpHandler.GetBailout)
	mux.HandleFunc("/api/v1/bailouts/act", httpHandler.ActOnBailout)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// methodRouter dispatches by HTTP method, answering 405 otherwise.
func methodRouter(routes map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.Method]; ok {
			h(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
