package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

// Result values of an audit event
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents an audit event
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Shop       string         `json:"shop"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Result     string         `json:"result"`
	Error      string         `json:"error,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// ZapAuditLogger writes audit events to a dedicated zap logger
type ZapAuditLogger struct {
	logger *zap.Logger
}

// NewZapAuditLogger creates a new zap-based audit logger
func NewZapAuditLogger(logger *zap.Logger) *ZapAuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditLogger{logger: logger.Named("audit")}
}

// Log logs an audit event
func (l *ZapAuditLogger) Log(ctx context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.String("audit_type", event.Type),
		zap.String("audit_action", event.Action),
		zap.String("audit_resource", event.Resource),
		zap.String("audit_resource_id", event.ResourceID),
		zap.String("audit_result", event.Result),
		zap.Time("audit_timestamp", event.Timestamp),
	}

	if event.Shop != "" {
		fields = append(fields, zap.String("shop", event.Shop))
	}
	if event.IPAddress != "" {
		fields = append(fields, zap.String("audit_ip_address", event.IPAddress))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("audit_error", event.Error))
	}
	if len(event.Details) > 0 {
		detailsJSON, err := json.Marshal(event.Details)
		if err != nil {
			return err
		}
		fields = append(fields, zap.String("audit_details", string(detailsJSON)))
	}

	if event.Result == ResultSuccess {
		l.logger.Info("Audit event", fields...)
	} else {
		l.logger.Warn("Audit event", fields...)
	}
	return nil
}

// Manager builds audit events for the merchant-visible changes the service makes
type Manager struct {
	logger Logger
	now    func() time.Time
}

// NewManager creates a new audit manager
func NewManager(logger Logger) *Manager {
	return &Manager{logger: logger, now: time.Now}
}

func (m *Manager) log(ctx context.Context, event Event, err error) error {
	event.ID = uuid.NewString()
	event.Timestamp = m.now().UTC()
	if event.Result == "" {
		event.Result = ResultSuccess
	}
	if err != nil {
		event.Result = ResultFailure
		event.Error = err.Error()
	}
	return m.logger.Log(ctx, event)
}

// LogSettingsUpdated records a settings write made through the admin API
func (m *Manager) LogSettingsUpdated(ctx context.Context, shop string, settings domain.Settings, err error) error {
	return m.log(ctx, Event{
		Type:       "settings",
		Shop:       shop,
		Action:     "update",
		Resource:   "dunning_settings",
		ResourceID: shop,
		Details: map[string]any{
			"retry_attempts":                        settings.RetryAttempts,
			"days_between_retry_attempts":           settings.DaysBetweenRetryAttempts,
			"on_failure":                            string(settings.OnFailure),
			"inventory_retry_attempts":              settings.InventoryRetryAttempts,
			"inventory_days_between_retry_attempts": settings.InventoryDaysBetweenRetryAttempts,
			"inventory_on_failure":                  string(settings.InventoryOnFailure),
			"inventory_notification_frequency":      string(settings.InventoryNotificationFrequency),
		},
	}, err)
}

// LogContractAction records the terminal action dunning applied to a contract
func (m *Manager) LogContractAction(ctx context.Context, shop, contractID string, billingCycleIndex int, outcome domain.Outcome) error {
	return m.log(ctx, Event{
		Type:       "dunning",
		Shop:       shop,
		Action:     string(outcome),
		Resource:   "subscription_contract",
		ResourceID: contractID,
		Details: map[string]any{
			"billing_cycle_index": billingCycleIndex,
		},
	}, nil)
}

// LogAccessDenied records a rejected webhook or admin API credential
func (m *Manager) LogAccessDenied(ctx context.Context, resource, ipAddress, reason string) error {
	return m.log(ctx, Event{
		Type:      "security",
		Action:    "access_denied",
		Resource:  resource,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
		Result: ResultFailure,
	}, nil)
}
