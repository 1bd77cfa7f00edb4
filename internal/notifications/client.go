package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/retry"
)

// Audience is who an email is addressed to.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceMerchant Audience = "merchant"
)

// Message is one email delivery request.
type Message struct {
	Shop       string        `json:"shop"`
	Audience   Audience      `json:"audience"`
	CustomerID string        `json:"customerId,omitempty"`
	Input      TemplateInput `json:"input"`

	// IdempotencyKey defaults to a key derived from the fields above.
	IdempotencyKey string `json:"-"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config configures the email delivery client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   retry.Config
}

// HTTPSender posts messages to the email delivery service.
type HTTPSender struct {
	config     Config
	httpClient *http.Client
}

// NewHTTPSender creates a new email delivery client
func NewHTTPSender(config Config) *HTTPSender {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.DefaultConfig()
	}
	return &HTTPSender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// DeliveryError is returned when the delivery service rejects a message.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email delivery failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// Send posts msg, retrying transport errors and 5xx responses.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}
	url := strings.TrimRight(s.config.BaseURL, "/") + "/v1/emails"

	return retry.Do(ctx, s.config.Retry, log.L(ctx), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Stop(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
		req.Header.Set("Idempotency-Key", idempotencyKey(msg))

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		derr := &DeliveryError{StatusCode: resp.StatusCode, Body: string(raw)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return derr
		}
		log.Warn(ctx, "Email delivery rejected",
			zap.String("template", string(msg.Input.Template)),
			zap.Int("status", resp.StatusCode))
		return retry.Stop(derr)
	})
}

// idempotencyKey lets the delivery service drop duplicates from our own retries
// and from replayed dunning runs.
func idempotencyKey(msg Message) string {
	if msg.IdempotencyKey != "" {
		return msg.IdempotencyKey
	}
	name := fmt.Sprintf("%s:%s:%s:%s:%d:%s", msg.Shop, msg.Audience, msg.CustomerID,
		msg.Input.ContractID, msg.Input.BillingCycleIndex, msg.Input.Template)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
