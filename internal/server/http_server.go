package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/circuitbreaker"
	"github.com/jia-app/dunningservice/internal/commerce"
	"github.com/jia-app/dunningservice/internal/config"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/dunning/usecase"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
	"github.com/jia-app/dunningservice/internal/webhook"
)

const maxWebhookBody = 1 << 20

// BillingAttemptHandler runs dunning for billing attempt webhooks.
type BillingAttemptHandler interface {
	HandleFailure(ctx context.Context, ev usecase.FailureEvent) (usecase.Result, error)
	HandleSuccess(ctx context.Context, ev usecase.SuccessEvent) (bool, error)
}

// SettingsAPI reads and writes shop settings.
type SettingsAPI interface {
	Load(ctx context.Context, shop string) (domain.Settings, error)
	Save(ctx context.Context, shop string, input domain.SettingsInput) (domain.Settings, error)
}

// SessionValidator resolves the shop of an admin session token.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// DeliveryDeduper drops webhook redeliveries.
type DeliveryDeduper interface {
	Claim(ctx context.Context, webhookID string) (bool, error)
	Release(ctx context.Context, webhookID string) error
}

// RequestLimiter throttles admin API calls per shop.
type RequestLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AuditTrail records admin changes and rejected credentials.
type AuditTrail interface {
	LogSettingsUpdated(ctx context.Context, shop string, settings domain.Settings, err error) error
	LogAccessDenied(ctx context.Context, resource, ipAddress, reason string) error
}

// HTTPDeps are the collaborators of the HTTP server. Deduper, Limiter and Audit may be nil.
type HTTPDeps struct {
	Dunning   BillingAttemptHandler
	Settings  SettingsAPI
	Webhooks  *webhook.Validator
	Sessions  SessionValidator
	Deduper   DeliveryDeduper
	Limiter   RequestLimiter
	Audit     AuditTrail
	Readiness HealthCheck
}

// HTTPServer serves the billing attempt webhooks and the settings API
type HTTPServer struct {
	server *http.Server
	deps   HTTPDeps
	logger *zap.Logger
}

// NewHTTPServer creates the HTTP server
func NewHTTPServer(cfg config.HTTPConfig, deps HTTPDeps, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HTTPServer{deps: deps, logger: logger}
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(observeMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/webhooks/billing-attempts", func(r chi.Router) {
		r.Post("/failure", s.handleBillingAttemptFailure)
		r.Post("/success", s.handleBillingAttemptSuccess)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Get("/api/settings", s.handleGetSettings)
		r.Put("/api/settings", s.handlePutSettings)
	})

	return r
}

// Start serves until ctx is done, then shuts down gracefully
func (s *HTTPServer) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server starting", zap.String("address", lis.Addr().String()))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.server.Serve(lis)
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

type webhookResponse struct {
	Status    string `json:"status"`
	Outcome   string `json:"outcome,omitempty"`
	TrackerID string `json:"trackerId,omitempty"`
}

// readWebhook authenticates the delivery and returns its shop and payload
func (s *HTTPServer) readWebhook(w http.ResponseWriter, r *http.Request) (string, *webhook.BillingAttemptPayload, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, domain.NewInvalidInputError("unreadable body", err.Error()))
		return "", nil, false
	}

	if err := s.deps.Webhooks.Validate(body, r.Header.Get(webhook.HeaderHmac)); err != nil {
		log.Warn(r.Context(), "Rejected webhook with invalid HMAC", zap.Error(err))
		s.auditDenied(r, "webhook", err)
		writeError(w, domain.NewUnauthorizedError("invalid webhook signature"))
		return "", nil, false
	}

	shop := strings.TrimSpace(r.Header.Get(webhook.HeaderShopDomain))
	if shop == "" {
		writeError(w, domain.NewInvalidInputError("missing shop domain header", webhook.HeaderShopDomain))
		return "", nil, false
	}

	payload, err := webhook.ParseBillingAttempt(body)
	if err != nil {
		writeError(w, err)
		return "", nil, false
	}
	return shop, payload, true
}

// claim reports whether the delivery is new. Dedupe failures let the delivery through.
func (s *HTTPServer) claim(ctx context.Context, webhookID string) bool {
	if s.deps.Deduper == nil || webhookID == "" {
		return true
	}
	claimed, err := s.deps.Deduper.Claim(ctx, webhookID)
	if err != nil {
		log.Warn(ctx, "Webhook dedupe unavailable", zap.String("webhook_id", webhookID), zap.Error(err))
		return true
	}
	return claimed
}

func (s *HTTPServer) release(ctx context.Context, webhookID string) {
	if s.deps.Deduper == nil || webhookID == "" {
		return
	}
	if err := s.deps.Deduper.Release(ctx, webhookID); err != nil {
		log.Warn(ctx, "Failed to release webhook claim", zap.String("webhook_id", webhookID), zap.Error(err))
	}
}

func (s *HTTPServer) handleBillingAttemptFailure(w http.ResponseWriter, r *http.Request) {
	const topic = webhook.TopicBillingAttemptFailure

	shop, payload, ok := s.readWebhook(w, r)
	if !ok {
		metrics.RecordWebhookReceived(topic, "rejected")
		return
	}
	ctx := log.WithShop(r.Context(), shop)

	webhookID := r.Header.Get(webhook.HeaderWebhookID)
	if !s.claim(ctx, webhookID) {
		metrics.RecordWebhookReceived(topic, "duplicate")
		writeJSON(w, http.StatusOK, webhookResponse{Status: "duplicate"})
		return
	}

	res, err := s.deps.Dunning.HandleFailure(ctx, payload.FailureEvent(shop))
	if err != nil {
		// A redelivery would repeat an action the contract already received.
		var notRecorded *usecase.ActionNotRecordedError
		if errors.As(err, &notRecorded) {
			log.Error(ctx, "Keeping webhook claim for applied dunning action",
				zap.String("webhook_id", webhookID),
				zap.String("outcome", string(notRecorded.Outcome)))
		} else {
			s.release(ctx, webhookID)
		}
		metrics.RecordWebhookReceived(topic, "error")
		writeError(w, err)
		return
	}

	metrics.RecordWebhookReceived(topic, "processed")
	resp := webhookResponse{Status: "processed", Outcome: string(res.Outcome)}
	if res.Replayed {
		resp.Status = "replayed"
	}
	if res.TrackerID != [16]byte{} {
		resp.TrackerID = res.TrackerID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleBillingAttemptSuccess(w http.ResponseWriter, r *http.Request) {
	const topic = webhook.TopicBillingAttemptSuccess

	shop, payload, ok := s.readWebhook(w, r)
	if !ok {
		metrics.RecordWebhookReceived(topic, "rejected")
		return
	}
	ctx := log.WithShop(r.Context(), shop)

	stopped, err := s.deps.Dunning.HandleSuccess(ctx, payload.SuccessEvent(shop))
	if err != nil {
		metrics.RecordWebhookReceived(topic, "error")
		writeError(w, err)
		return
	}

	metrics.RecordWebhookReceived(topic, "processed")
	resp := webhookResponse{Status: "processed"}
	if stopped {
		resp.Outcome = string(domain.OutcomeBillingSucceeded)
	}
	writeJSON(w, http.StatusOK, resp)
}

// allow fails open when the limiter is unavailable
func (s *HTTPServer) allow(ctx context.Context, key string) bool {
	if s.deps.Limiter == nil {
		return true
	}
	allowed, err := s.deps.Limiter.Allow(ctx, key)
	if err != nil {
		log.Warn(ctx, "Rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
		return true
	}
	return allowed
}

func (s *HTTPServer) auditDenied(r *http.Request, resource string, reason error) {
	if s.deps.Audit == nil {
		return
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if err := s.deps.Audit.LogAccessDenied(r.Context(), resource, ip, reason.Error()); err != nil {
		log.Warn(r.Context(), "Failed to write audit event", zap.Error(err))
	}
}

func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	shop := sessionShopFrom(r.Context())
	settings, err := s.deps.Settings.Load(r.Context(), shop)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	shop := sessionShopFrom(r.Context())

	var input domain.SettingsInput
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, domain.NewInvalidInputError("malformed settings body", err.Error()))
		return
	}

	ctx := r.Context()
	settings, err := s.deps.Settings.Save(ctx, shop, input)
	if s.deps.Audit != nil {
		if auditErr := s.deps.Audit.LogSettingsUpdated(ctx, shop, settings, err); auditErr != nil {
			log.Warn(ctx, "Failed to write audit event", zap.Error(auditErr))
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Readiness != nil {
		if err := s.deps.Readiness(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps a service error onto an HTTP status
func statusFor(err error) int {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	if derr := domain.GetDomainError(err); derr != nil {
		switch derr.Code {
		case domain.ErrCodeInvalidInput:
			return http.StatusBadRequest
		case domain.ErrCodeUnauthorized:
			return http.StatusUnauthorized
		case domain.ErrCodeNotFound:
			return http.StatusNotFound
		case domain.ErrCodeInvalidState:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}

	var httpErr *commerce.HTTPError
	var gqlErr *commerce.GraphQLError
	switch {
	case errors.Is(err, domain.ErrTrackerNotFound), errors.Is(err, domain.ErrSettingsNotFound):
		return http.StatusNotFound
	case commerce.IsProtocolError(err),
		errors.As(err, &httpErr),
		errors.As(err, &gqlErr),
		errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: http.StatusText(status)}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		body.Error = "validation failed"
		body.Fields = verr.Fields
	case domain.GetDomainError(err) != nil:
		derr := domain.GetDomainError(err)
		body.Error = derr.Message
		body.Code = derr.Code
	case status == http.StatusBadGateway:
		body.Error = "commerce API error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
