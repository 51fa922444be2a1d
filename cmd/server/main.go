package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"deskchat/auth"
	"deskchat/gateway"
	"deskchat/internal"
	"deskchat/repositories"
	"deskchat/runtime"
	"deskchat/services"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting. Preferred over calling os.Exit or panic
// directly so that defers (like the database close) always execute and
// graceful shutdown stays in one place.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are
		// flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Messaging core
	messageRepository := repositories.NewMessageRepository(db, logger, config.HistoryPageSize)
	conversationRepository := repositories.NewConversationRepository(db)
	registry := runtime.NewRegistry()
	supervisor := runtime.NewSupervisor(logger)
	orchestrator := runtime.NewOrchestrator(logger, supervisor, registry,
		conversationRepository, messageRepository, config.RoomBufferSize)
	messagingService := services.NewMessagingService(orchestrator,
		conversationRepository, messageRepository, config.MaxContentLength)
	verifier := auth.NewVerifier([]byte(config.JWTSecret))

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to
	// trigger a shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)

	// 5. Gateway (WebSocket + HTTP read surface)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler := gateway.NewHandler(logger, verifier, messagingService,
		config.ConnectionBufferSize, config.DeliveryTimeout)
	handler.Register(app)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting gateway", "address", address, "at", time.Now().UTC())
		if err := app.Listen(address); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the
	// server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 7. Final Cleanup (Graceful Shutdown)
	// Active sessions get a chance to flush before the room workers stop.
	logger.Info("Shutting down gracefully...")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("Gateway shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}
