package interceptors

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jia-app/dunningservice/internal/circuitbreaker"
	"github.com/jia-app/dunningservice/internal/commerce"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/log"
)

// ErrorHandlerInterceptor provides error handling middleware for gRPC
type ErrorHandlerInterceptor struct{}

// NewErrorHandlerInterceptor creates a new error handler interceptor
func NewErrorHandlerInterceptor() *ErrorHandlerInterceptor {
	return &ErrorHandlerInterceptor{}
}

// Unary returns a unary interceptor for error handling
func (i *ErrorHandlerInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, i.handleError(ctx, err, info.FullMethod)
		}
		return resp, nil
	}
}

// Stream returns a stream interceptor for error handling
func (i *ErrorHandlerInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := handler(srv, stream); err != nil {
			return i.handleError(stream.Context(), err, info.FullMethod)
		}
		return nil
	}
}

// handleError processes and converts errors to appropriate gRPC status codes
func (i *ErrorHandlerInterceptor) handleError(ctx context.Context, err error, method string) error {
	if err == nil {
		return nil
	}

	log.Error(ctx, "Error occurred in gRPC method",
		zap.String("method", method),
		zap.Error(err))

	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	return ToStatus(err).Err()
}

// ToStatus maps a service error onto a gRPC status
func ToStatus(err error) *status.Status {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return status.New(codes.InvalidArgument, verr.Error())
	}

	if domainErr := domain.GetDomainError(err); domainErr != nil {
		switch domainErr.Code {
		case domain.ErrCodeNotFound:
			return status.New(codes.NotFound, domainErr.Message)
		case domain.ErrCodeInvalidInput:
			return status.New(codes.InvalidArgument, domainErr.Message)
		case domain.ErrCodeUnauthorized:
			return status.New(codes.Unauthenticated, domainErr.Message)
		case domain.ErrCodeInvalidState:
			return status.New(codes.FailedPrecondition, domainErr.Message)
		default:
			return status.New(codes.Internal, domainErr.Message)
		}
	}

	switch {
	case errors.Is(err, domain.ErrTrackerNotFound), errors.Is(err, domain.ErrSettingsNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return status.New(codes.Unavailable, "commerce API circuit open")
	case commerce.IsProtocolError(err):
		return status.New(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, "request timeout")
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, "request canceled")
	}

	var httpErr *commerce.HTTPError
	if errors.As(err, &httpErr) {
		return status.New(codes.Unavailable, httpErr.Error())
	}

	return status.New(codes.Internal, "internal server error")
}
