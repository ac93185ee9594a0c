package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-hr-approvals/internal/client"
	"github.com/pesio-ai/be-hr-approvals/internal/config"
	"github.com/pesio-ai/be-hr-approvals/internal/database"
	"github.com/pesio-ai/be-hr-approvals/internal/handler"
	"github.com/pesio-ai/be-hr-approvals/internal/logger"
	"github.com/pesio-ai/be-hr-approvals/internal/middleware"
	"github.com/pesio-ai/be-hr-approvals/internal/repository"
	"github.com/pesio-ai/be-hr-approvals/internal/service"
	"github.com/pesio-ai/be-hr-approvals/internal/telemetry"
)

type stores struct {
	policies  service.PolicyStore
	documents service.DocumentStore
	actions   service.ActionStore
	pinger    handler.Pinger
	close     func()
}

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
		Str("storage", cfg.Storage.Driver).
		Bool("hierarchical_fallback", cfg.Resolver.HierarchicalFallback).
		Msg("Starting Approval Line Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Initialize storage
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer st.close()

	// Initialize external collaborators
	directory, closeDirectory, err := openDirectory(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize HR directory")
	}
	defer closeDirectory()

	var publisher service.NotificationPublisherInterface
	if cfg.NATS.URL != "" {
		nc, err := client.Connect(cfg.NATS.URL, cfg.Service.Name, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				log.Error().Err(err).Msg("NATS drain failed")
			}
		}()
		publisher = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Msg("Notification publisher connected")
	}

	// Initialize services
	registry := service.NewPolicyRegistry(st.policies, log.Component("policy_registry"))
	resolver := service.NewLineResolver(registry, directory, cfg.Resolver.HierarchicalFallback, log.Component("line_resolver"))
	tracker := service.NewStepTracker(st.documents, publisher, log.Component("step_tracker"))
	workflow := service.NewDocumentWorkflow(st.documents, st.actions, resolver, tracker, publisher, log.Component("document_workflow"))

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(registry, resolver, workflow, st.pinger, log.Logger)

	r := chi.NewRouter()
	r.Use(middleware.Stack(log.Logger, cfg.Server.CORSOrigins, cfg.Server.RequestTimeout)...)
	httpHandler.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
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

	// Start gRPC server
	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			handler.RecoveryInterceptor(log.Logger),
			handler.ActorInterceptor,
			handler.LoggingInterceptor(log.Logger),
		))
		handler.NewGRPCHandler(resolver, workflow, log.Logger).Register(grpcServer)

		healthServer := health.NewServer()
		healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer) // Enable reflection for debugging

		grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create gRPC listener")
		}

		go func() {
			log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
			if err := grpcServer.Serve(grpcListener); err != nil {
				log.Error().Err(err).Msg("gRPC server failed")
			}
		}()
	}

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
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracer shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// openStores picks the persistence backend named by storage.driver.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage; state is lost on restart")
		mem := repository.NewMemoryDB()
		return &stores{
			policies:  repository.NewMemoryPolicyRepository(mem),
			documents: repository.NewMemoryDocumentRepository(mem),
			actions:   repository.NewMemoryApprovalActionRepository(mem),
			close:     func() {},
		}, nil
	}

	db, err := database.New(ctx, database.Config{
		URL:         cfg.Database.URL,
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
	}, log.Logger)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &stores{
		policies:  repository.NewPolicyRepository(db),
		documents: repository.NewDocumentRepository(db),
		actions:   repository.NewApprovalActionRepository(db),
		pinger:    db,
		close:     db.Close,
	}, nil
}

// openDirectory builds the HR directory client, fronted by Redis when an
// address is configured. A nil directory keeps policy snapshots as stored.
func openDirectory(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.DirectoryClientInterface, func(), error) {
	noop := func() {}

	var directory service.DirectoryClientInterface
	switch {
	case cfg.Directory.BaseURL != "":
		directory = client.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
		log.Info().Str("base_url", cfg.Directory.BaseURL).Msg("HR directory client initialized")
	case cfg.Directory.StaticFile != "":
		static, err := client.LoadStaticDirectory(cfg.Directory.StaticFile)
		if err != nil {
			return nil, noop, err
		}
		directory = static
		log.Info().Str("file", cfg.Directory.StaticFile).Msg("Static HR directory loaded")
	default:
		log.Warn().Msg("No HR directory configured; approver snapshots and department ancestry are unavailable")
		return nil, noop, nil
	}

	if cfg.Redis.Addr == "" {
		return directory, noop, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable; directory cache will fall through")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.DirectoryTTL).Msg("Directory cache enabled")

	cached := client.NewCachedDirectory(directory, rdb, cfg.Redis.DirectoryTTL, log.Logger)
	return cached, func() { _ = rdb.Close() }, nil
}
