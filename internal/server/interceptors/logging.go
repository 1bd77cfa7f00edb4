package interceptors

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jia-app/dunningservice/internal/log"
)

// Metadata keys read from incoming calls
const (
	MetadataRequestID = "x-request-id"
	MetadataShop      = "x-shop-domain"
)

// LoggingInterceptor provides request logging middleware for gRPC
type LoggingInterceptor struct{}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor() *LoggingInterceptor {
	return &LoggingInterceptor{}
}

// Unary returns a unary interceptor for request logging
func (i *LoggingInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		ctx = withCallFields(ctx)

		log.Debug(ctx, "gRPC request started", zap.String("method", info.FullMethod))

		resp, err := handler(ctx, req)
		logCompletion(ctx, "gRPC request", info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

// Stream returns a stream interceptor for request logging
func (i *LoggingInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		ctx := withCallFields(stream.Context())

		wrappedStream := &wrappedServerStream{
			ServerStream: stream,
			ctx:          ctx,
		}

		log.Debug(ctx, "gRPC stream started", zap.String("method", info.FullMethod))

		err := handler(srv, wrappedStream)
		logCompletion(ctx, "gRPC stream", info.FullMethod, time.Since(start), err)
		return err
	}
}

func logCompletion(ctx context.Context, kind, method string, duration time.Duration, err error) {
	if err != nil {
		st, _ := status.FromError(err)
		log.Error(ctx, kind+" failed",
			zap.String("method", method),
			zap.Duration("duration", duration),
			zap.String("code", st.Code().String()),
			zap.String("error", st.Message()))
		return
	}
	log.Debug(ctx, kind+" completed",
		zap.String("method", method),
		zap.Duration("duration", duration),
		zap.String("code", codes.OK.String()))
}

// withCallFields puts the request id and shop of the call into ctx
func withCallFields(ctx context.Context) context.Context {
	requestID := metadataValue(ctx, MetadataRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = log.WithRequestID(ctx, requestID)

	if shop := metadataValue(ctx, MetadataShop); shop != "" {
		ctx = log.WithShop(ctx, shop)
	}
	return ctx
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// wrappedServerStream wraps grpc.ServerStream to provide a custom context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
