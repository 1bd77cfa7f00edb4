package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventTypeDunningOutcome is the type of events emitted after every dunning run
const EventTypeDunningOutcome = "dunning.outcome"

// Event represents a domain event
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Aggregate string          `json:"aggregate"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Version   int             `json:"version"`
}

// NewEvent wraps data in an envelope keyed by aggregate
func NewEvent(eventType, aggregate string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Aggregate: aggregate,
		Data:      raw,
		Timestamp: time.Now().UTC().UnixMilli(),
		Version:   1,
	}, nil
}

// DunningOutcome is the payload of a dunning.outcome event
type DunningOutcome struct {
	Shop              string     `json:"shop"`
	ContractID        string     `json:"contract_id"`
	BillingCycleIndex int        `json:"billing_cycle_index"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	FailureClass      string     `json:"failure_class,omitempty"`
	Outcome           string     `json:"outcome"`
	AttemptsCount     int        `json:"attempts_count"`
	TrackerID         string     `json:"tracker_id,omitempty"`
	NextBillingDate   *time.Time `json:"next_billing_date,omitempty"`
}

// DunningPublisher publishes dunning outcomes
type DunningPublisher interface {
	PublishDunningOutcome(ctx context.Context, outcome DunningOutcome) error
	Close() error
}

// NoopPublisher is used when Kafka is disabled
type NoopPublisher struct{}

// PublishDunningOutcome implements DunningPublisher
func (NoopPublisher) PublishDunningOutcome(ctx context.Context, outcome DunningOutcome) error {
	return nil
}

// Close implements DunningPublisher
func (NoopPublisher) Close() error { return nil }

// KafkaPublisher publishes events through a sarama sync producer
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewProducerConfig returns the sarama config used for outcome events
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_8_0_0
	return config
}

// NewKafkaPublisher connects a sync producer to brokers
func NewKafkaPublisher(brokers []string, topic, clientID string, logger *zap.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Publish sends one event keyed by its aggregate so that events of one
// contract stay ordered within a partition
func (p *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Aggregate),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	p.logger.Debug("Event published",
		zap.String("topic", p.topic),
		zap.String("event_type", event.Type),
		zap.String("event_id", event.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// PublishDunningOutcome implements DunningPublisher
func (p *KafkaPublisher) PublishDunningOutcome(ctx context.Context, outcome DunningOutcome) error {
	event, err := NewEvent(EventTypeDunningOutcome, outcome.ContractID, outcome)
	if err != nil {
		return err
	}
	return p.Publish(ctx, event)
}

// Close closes the producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
