package server

import (
	"context"
	"net"
	"sync"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/jia-app/dunningservice/internal/config"
	"github.com/jia-app/dunningservice/internal/metrics"
	"github.com/jia-app/dunningservice/internal/server/interceptors"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// GRPCServer serves the standard health service and reflection for operators
type GRPCServer struct {
	server       *grpc.Server
	config       config.GRPCConfig
	logger       *zap.Logger
	healthServer *health.Server
	checks       map[string]HealthCheck
	interval     time.Duration

	mu       sync.Mutex
	listener net.Listener
}

// NewGRPCServer creates the ops gRPC server with all interceptors. checks are
// run periodically; the server reports SERVING only while all of them pass.
func NewGRPCServer(cfg config.GRPCConfig, logger *zap.Logger, checks map[string]HealthCheck) *GRPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	loggingInterceptor := interceptors.NewLoggingInterceptor()
	errorHandlerInterceptor := interceptors.NewErrorHandlerInterceptor()

	recoveryOpts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p interface{}) (err error) {
			logger.Error("gRPC panic recovered", zap.Any("panic", p))
			metrics.RecordError("panic", "grpc")
			return status.Errorf(codes.Internal, "internal server error")
		}),
	}

	zapOpts := []grpc_zap.Option{
		grpc_zap.WithLevels(grpc_zap.DefaultCodeToLevel),
	}

	unaryInterceptors := []grpc.UnaryServerInterceptor{
		otelgrpc.UnaryServerInterceptor(),
		grpc_recovery.UnaryServerInterceptor(recoveryOpts...),
		grpc_zap.UnaryServerInterceptor(logger, zapOpts...),
		errorHandlerInterceptor.Unary(),
		loggingInterceptor.Unary(),
		metricsInterceptor(),
	}

	streamInterceptors := []grpc.StreamServerInterceptor{
		otelgrpc.StreamServerInterceptor(),
		grpc_recovery.StreamServerInterceptor(recoveryOpts...),
		grpc_zap.StreamServerInterceptor(logger, zapOpts...),
		errorHandlerInterceptor.Stream(),
		loggingInterceptor.Stream(),
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(unaryInterceptors...)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(streamInterceptors...)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	// NOT_SERVING until the first dependency check passes
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	if cfg.EnableReflection {
		logger.Info("Registering gRPC reflection")
		reflection.Register(server)
	}

	return &GRPCServer{
		server:       server,
		config:       cfg,
		logger:       logger,
		healthServer: healthServer,
		checks:       checks,
		interval:     30 * time.Second,
	}
}

func metricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		metrics.RecordGRPCRequest(info.FullMethod, status.Code(err).String())
		return resp, err
	}
}

// GetServer returns the underlying gRPC server
func (s *GRPCServer) GetServer() *grpc.Server {
	return s.server
}

// StartHealthMonitoring runs the dependency checks now and then every interval until ctx is done
func (s *GRPCServer) StartHealthMonitoring(ctx context.Context) {
	go s.monitorHealth(ctx)
}

func (s *GRPCServer) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting health monitoring for dependencies")
	s.checkDependencies(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Health monitoring stopped due to context cancellation")
			return
		case <-ticker.C:
			s.checkDependencies(ctx)
		}
	}
}

// checkDependencies runs every check and updates the serving status
func (s *GRPCServer) checkDependencies(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			healthy = false
			s.logger.Warn("Dependency health check failed",
				zap.String("dependency", name),
				zap.Error(err))
		}
	}

	if healthy {
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.logger.Debug("All dependencies healthy, setting status to SERVING")
	} else {
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Listen binds the configured address. Serve calls it when needed.
func (s *GRPCServer) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		lis, err := net.Listen("tcp", s.config.Address)
		if err != nil {
			return nil, err
		}
		s.listener = lis
	}
	return s.listener.Addr(), nil
}

// Serve serves until ctx is done, then stops gracefully
func (s *GRPCServer) Serve(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	s.logger.Info("gRPC server starting", zap.String("address", addr.String()))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		s.logger.Info("gRPC server shutting down due to context cancellation")
	}

	s.healthServer.Shutdown()

	gracefulStop := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(gracefulStop)
	}()

	select {
	case <-gracefulStop:
		s.logger.Info("gRPC server stopped gracefully")
	case <-time.After(30 * time.Second):
		s.logger.Warn("Graceful shutdown timeout, forcing stop")
		s.server.Stop()
	}
	return nil
}
