package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/auth"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
	"github.com/jia-app/dunningservice/internal/tracing"
)

var headerRequestID = middleware.RequestIDHeader

type sessionShopKey struct{}

// requestIDMiddleware echoes the chi request id and carries it into the log context
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		if reqID == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set(headerRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(log.WithRequestID(r.Context(), reqID)))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error(r.Context(), "HTTP panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				metrics.RecordError("panic", "http")
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// routePattern is the matched chi route, or "unmatched"
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// observeMiddleware traces, logs and counts every request under its route pattern
func observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := tracing.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path))
		if traceID := tracing.GetTraceID(ctx); traceID != "" {
			ctx = log.WithTraceID(ctx, traceID)
		}
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		statusCode := ww.Status()
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		duration := time.Since(start)
		route := routePattern(r)

		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(statusCode), duration)

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", statusCode))
		tracing.EndSpan(span, nil)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status_code", statusCode),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", duration),
		}
		switch {
		case statusCode >= 500:
			log.Error(ctx, "HTTP request completed", fields...)
		case statusCode >= 400:
			log.Warn(ctx, "HTTP request completed", fields...)
		default:
			log.Debug(ctx, "HTTP request completed", fields...)
		}
	})
}

// sessionMiddleware authenticates admin API calls and applies the per-shop rate limit
func (s *HTTPServer) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractTokenFromAuthHeader(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, domain.NewUnauthorizedError("missing session token"))
			return
		}
		shop, err := s.deps.Sessions.Validate(r.Context(), token)
		if err != nil {
			log.Warn(r.Context(), "Rejected session token", zap.Error(err))
			s.auditDenied(r, "settings_api", err)
			writeError(w, domain.NewUnauthorizedError("invalid session token"))
			return
		}

		route := r.Method + " " + routePattern(r)
		if !s.allow(r.Context(), shop+":"+route) {
			log.Warn(r.Context(), "Rate limit exceeded", zap.String("shop", shop), zap.String("route", route))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}

		ctx := context.WithValue(log.WithShop(r.Context(), shop), sessionShopKey{}, shop)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionShopFrom(ctx context.Context) string {
	shop, _ := ctx.Value(sessionShopKey{}).(string)
	return shop
}
