package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the servers lifecycle and centralizes error reporting,
// so that every deferred close runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment may already be set.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Message store (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugInspectorPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugInspectorPort, endpoint, MessageMapper)
	}

	// 3. Directory (PostgreSQL)
	directory, err := repositories.NewDirectory(ctx, config.DatabaseURL, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("directory unavailable: %w", err)
	}
	defer func() {
		logger.Info("Closing PostgreSQL pool...")
		directory.Close()
	}()

	// 4. Runtime
	messageRepository := repositories.NewMessageRepository(db, logger)
	registry := runtime.NewRegistry(directory, logger)
	enforcer := runtime.NewRetentionEnforcer(messageRepository, logger, config.MaxUserMessages, config.MaxChannelMessages)
	retentionQueue := workers.NewRetentionQueue(logger, enforcer, config.RetentionBufferSize, config.DeliveryTimeout)
	healthPublisher := server.NewHealthPublisher(logger)
	probes := map[string]observability.Probe{
		"postgres": directory.Ping,
		"badger": func(context.Context) error {
			if db.IsClosed() {
				return fmt.Errorf("badger is closed")
			}
			return nil
		},
	}

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(
		logger, sup, registry,
		directory, directory,
		messageRepository,
		runtime.NewDispatcher(logger, directory, registry, config.DeliveryTimeout),
		runtime.NewPaginator(logger, messageRepository, directory, config.DefaultPageSize),
		retentionQueue,
		config.MaxChannelHashtags,
	)
	for i := 0; i < config.RetentionWorkers; i++ {
		orchestrator.RegisterWorkers(workers.NewRetentionWorker(logger, retentionQueue))
	}
	orchestrator.RegisterWorkers(workers.NewHealthMonitoringWorker(logger, probes, healthPublisher, config.HealthInterval))

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. HTTP server (WebSocket, health, metrics)
	origins := ws.NewOrigins(logger, config.AllowedOrigins())
	verifier := auth.NewVerifier(logger, []byte(config.JwtSecret), directory)
	chatService := services.NewChatService(orchestrator)
	handler := ws.NewHandler(logger, chatService, verifier, origins, config.ConnectionBufferSize, config.MaxFrameSize)
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		Handler:           api.NewRouter(logger, handler, probes, origins.List()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC health server
	address := net.JoinHostPort(config.Host, fmt.Sprint(config.GrpcPort))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	grpcServer := server.NewServer(logger, healthPublisher)
	go func() {
		logger.Info("Starting gRPC server", "address", address)
		for serviceName := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	exitCode, exitErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		exitCode, exitErr = exitRuntime, err
	}

	// 9. Graceful shutdown: HTTP first, then live sessions, workers and gRPC.
	// Postgres and Badger are closed by the deferred calls above, once every
	// session left and every retention job ran.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	healthPublisher.Shutdown()
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		logger.Error("Sessions still open at shutdown", "error", err)
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Error("Workers still running at shutdown", "error", shutdownCtx.Err())
	}
	retentionQueue.Wait()
	grpcServer.GracefulStop()
	logger.Info("Program stopped cleanly")

	return exitCode, exitErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// MessageMapper renders the relay keys in the debug inspector.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "message:"):
		var m repositories.DiskMessage
		if err := json.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "MESSAGE"
		row.Detail = fmt.Sprintf("[%s] %s: %s", m.ChannelID, m.UserID, m.Content)
		row.Scores = strings.Join(m.Hashtags, " ")
	case strings.HasSuffix(key, ":hashtags"):
		var tags []string
		if err := json.Unmarshal(val, &tags); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "HASHTAGS"
		row.Detail = strings.Join(tags, " ")
	case strings.Contains(key, ":msg:"):
		row.Type = "INDEX"
	}
	return row
}
