package main

import (
	"context"
	"dm-lab/api/account"
	pb "dm-lab/api/chat"
	"dm-lab/auth"
	"dm-lab/contract"
	"dm-lab/gateway"
	"dm-lab/infrastructure/dynamo"
	"dm-lab/infrastructure/grpc/server"
	"dm-lab/infrastructure/rest"
	"dm-lab/infrastructure/storage"
	"dm-lab/internal"
	"dm-lab/moderation"
	"dm-lab/runtime"
	"dm-lab/runtime/workers"
	"dm-lab/services"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes for the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so deferred cleanups happen before the exit code is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	overflowPolicy, err := runtime.ParseOverflowPolicy(config.OverflowPolicy)
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Message store
	messages, users, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Core components
	registry := runtime.NewRegistry()
	coordinator := services.NewDeliveryService(logger, messages, registry, config.MaxContentLength, config.AllowSelfMessages)
	if config.CensoredWordsFile != "" {
		moderator, err := buildModerator(config)
		if err != nil {
			return exitConfig, fmt.Errorf("moderation error: %w", err)
		}
		logger.Info("Content moderation enabled", "words", moderator.Words())
		coordinator.WithFilter(moderator)
	}
	history := services.NewHistoryService(messages)
	authService := services.NewAuthService(users, config.JwtSecret, config.AuthTokenDuration)
	sessions := gateway.NewGateway(logger, registry, coordinator, gateway.Config{
		BufferSize:        config.ConnectionBufferSize,
		OverflowPolicy:    overflowPolicy,
		SendRatePerSecond: config.SendRatePerSecond,
	})

	errChan := make(chan error, 2)

	// 4. Supervised workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewPresenceReporter(logger, registry, config.MetricInterval))
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 5. gRPC server
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}

	interceptor := auth.NewInterceptor(authService,
		account.AuthService_Login_FullMethodName,
		account.AuthService_Register_FullMethodName,
	)
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			interceptor.Unary(),
		),
		grpc.ChainStreamInterceptor(interceptor.Stream()),
	)
	pb.RegisterChatServiceServer(s, server.NewChatServer(logger, coordinator, history, sessions))
	account.RegisterAuthServiceServer(s, server.NewAuthServer(authService))

	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress, "at", time.Now().UTC())
		for serviceName := range s.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", serviceName)
		}
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 6. HTTP server
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.HttpPort),
		Handler:           rest.NewRouter(logger, rest.NewHandler(logger, authService, coordinator, history)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown, live streams still open after shutdownTimeout are cut
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		s.Stop()
	}
	stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

// openStore returns the repositories of the configured backend and a cleanup function.
func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.IMessageStore, contract.IUserRepository, func(), error) {
	switch config.StoreBackend {
	case internal.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, config.AwsRegion, config.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := dynamo.EnsureTable(ctx, client, config.DynamoDBTable); err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Using DynamoDB store", "table", config.DynamoDBTable, "region", config.AwsRegion)
		return dynamo.NewMessageRepository(client, config.DynamoDBTable, logger, config.AppendMaxAttempts),
			dynamo.NewUserRepository(client, config.DynamoDBTable),
			func() {}, nil

	default:
		db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		logger.Info("Using Badger store", "path", config.BadgerFilepath)
		return storage.NewMessageRepository(db, logger, config.AppendMaxAttempts),
			storage.NewUserRepository(db),
			func() {
				logger.Info("Closing BadgerDB...")
				_ = db.Close()
			}, nil
	}
}

func buildModerator(config internal.Config) (*moderation.Moderator, error) {
	words, err := moderation.LoadWords(config.CensoredWordsFile)
	if err != nil {
		return nil, err
	}
	charReplacement, _ := utf8.DecodeRuneInString(config.CharReplacement)
	return moderation.NewModerator(words, charReplacement)
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
