package interceptors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jia-app/dunningservice/internal/circuitbreaker"
	"github.com/jia-app/dunningservice/internal/commerce"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/log"
)

func TestLoggingInterceptor_PropagatesRequestFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log.SetLogger(zap.New(core))
	t.Cleanup(func() { log.SetLogger(zap.NewNop()) })

	ctx := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		MetadataRequestID: "req-123",
		MetadataShop:      "acme.myshopify.com",
	}))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := NewLoggingInterceptor().Unary()(ctx, "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		log.Info(ctx, "inside handler")
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	entries := logs.FilterMessage("inside handler").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "acme.myshopify.com", fields["shop"])
}

func TestLoggingInterceptor_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log.SetLogger(zap.New(core))
	t.Cleanup(func() { log.SetLogger(zap.NewNop()) })

	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}
	_, err := NewLoggingInterceptor().Unary()(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "gone")
	})
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("gRPC request failed").Len())
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", domain.NewNotFoundError("contract", "1"), codes.NotFound},
		{"invalid input", domain.NewInvalidInputError("bad", ""), codes.InvalidArgument},
		{"unauthorized", domain.NewUnauthorizedError("no"), codes.Unauthenticated},
		{"validation", &domain.ValidationError{Fields: map[string]string{"onFailure": "bad"}}, codes.InvalidArgument},
		{"tracker sentinel", fmt.Errorf("wrap: %w", domain.ErrTrackerNotFound), codes.NotFound},
		{"circuit open", circuitbreaker.ErrCircuitOpen, codes.Unavailable},
		{"protocol", &commerce.ProtocolError{Operation: "subscriptionContractCancel", Expected: "contract"}, codes.Unavailable},
		{"http", &commerce.HTTPError{Operation: "x", StatusCode: 503}, codes.Unavailable},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToStatus(tt.err).Code())
		})
	}
}

func TestErrorHandlerInterceptor_KeepsStatusErrors(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}
	_, err := NewErrorHandlerInterceptor().Unary()(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.PermissionDenied, "nope")
	})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = NewErrorHandlerInterceptor().Unary()(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, domain.NewNotFoundError("settings", "acme")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
