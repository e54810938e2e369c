package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	federationsqlite "github.com/louisbranch/neso/internal/services/federation/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls dispatcher startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port         int
	DBPath       string
	PollInterval time.Duration
	MaxAttempts  int
	SendTimeout  time.Duration
}

const (
	defaultDispatcherPort = 8091
	defaultDispatcherDB   = "data/federation.db"
)

// Run starts dispatcher runtime dependencies and the delivery loop. It
// blocks until ctx is canceled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultDispatcherPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDispatcherDB
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dispatcher storage dir: %w", err)
		}
	}

	store, err := federationsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open federation sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close federation sqlite store: %v", closeErr)
		}
	}()

	sender := &HTTPSender{Client: &http.Client{}}
	loop, err := New(store, sender, Config{
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		SendTimeout:  cfg.SendTimeout,
	}, nil)
	if err != nil {
		return fmt.Errorf("build dispatcher loop: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on dispatcher port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("dispatcher.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("dispatcher server listening at %v", listener.Addr())
	return loop.Run(ctx)
}
