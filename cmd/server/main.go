package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/veldt/flowline/internal/api"
	"github.com/veldt/flowline/internal/capability"
	"github.com/veldt/flowline/internal/config"
	"github.com/veldt/flowline/internal/engine"
	"github.com/veldt/flowline/internal/event"
	"github.com/veldt/flowline/internal/executor"
	"github.com/veldt/flowline/internal/recorder"
	"github.com/veldt/flowline/internal/store"
	"github.com/veldt/flowline/internal/workflow"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load(os.Getenv("FLOWLINE_CONFIG"))
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Connect to PostgreSQL
	dbClient, err := store.NewClient(ctx, cfg.Database.URL, sugar)
	if err != nil {
		sugar.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	// 2. Create event bus and recorder
	eventBus := event.NewBus(sugar)
	rec := recorder.NewPostgres(dbClient, sugar)

	// 3. Assemble capabilities
	tools := capability.NewToolRegistry()
	capability.RegisterBuiltins(tools)

	var generator capability.TextGenerator
	if cfg.Gemini.APIKey != "" {
		generator = capability.NewGeminiGenerator(cfg.Gemini.APIKey, cfg.Gemini.Model)
		sugar.Infow("Using Gemini text generation", "model", cfg.Gemini.Model)
	} else {
		generator = &capability.MockGenerator{}
		sugar.Warn("GEMINI_API_KEY not set, using mock text generation")
	}
	agent := &capability.MockAgent{}

	// 4. Create executors and runner
	timeouts := map[workflow.NodeKind]time.Duration{
		workflow.KindToolCall:        cfg.Engine.ToolCallTimeout,
		workflow.KindAITransform:     cfg.Engine.AITransformTimeout,
		workflow.KindAutonomousAgent: cfg.Engine.AutonomousAgentTimeout,
	}
	set := executor.NewSet(sugar, timeouts,
		executor.NewToolCall(tools, sugar),
		executor.NewAITransform(generator, sugar),
		executor.NewAutonomousAgent(agent, sugar),
	)
	runner := engine.NewRunner(set, eventBus, rec, sugar)

	// 5. HTTP API
	apiServer := api.NewServer(dbClient, runner, eventBus, generator, cfg.KeepaliveInterval(), sugar)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort()),
		Handler: apiServer.Routes(),
	}
	go func() {
		sugar.Infof("Flowline HTTP server listening on :%d", cfg.HTTPPort())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 6. gRPC health listener for infra probes
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort()))
	if err != nil {
		sugar.Fatalf("Failed to listen: %v", err)
	}
	grpcServer := grpclib.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("flowline", healthpb.HealthCheckResponse_SERVING)

	go func() {
		sugar.Infof("Flowline gRPC health server listening on :%d", cfg.GRPCPort())
		if err := grpcServer.Serve(lis); err != nil {
			sugar.Fatalf("Failed to serve: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("HTTP shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	sugar.Info("Server stopped")
}
