package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-fulfillment/internal/app"
	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/tickets/ticket_api"
)

// The gate server only verifies and checks in codes, so it needs neither
// Redis nor Kafka.
func main() {
	logger := logger.NewLogger("ticket-gate")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := app.ConnectPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	ticketSvc, _, err := app.NewTicketService(ctx, cfg, bunDB, logger)
	if err != nil {
		logger.Fatal("APP", err.Error())
	}
	verifier, err := app.NewVerifier(ctx, cfg.Auth, logger)
	if err != nil {
		logger.Fatal("AUTH", err.Error())
	}

	server := &http.Server{
		Addr:         cfg.Server.GatePort,
		Handler:      app.NewGateRouter(ticket_api.NewHandler(ticketSvc, logger), verifier, cfg.Server.AllowedOrigins, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Ticket gate running on %s", cfg.Server.GatePort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	logger.Info("APP", "Ticket gate shutdown complete")
}
