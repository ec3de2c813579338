// Package events publishes batch outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/metrics"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
)

const (
	EventTypeBatchCompleted = "kyc.batch.completed"
	EventTypeRiskAlert      = "kyc.risk.alert"

	headerEventType = "event_type"
	headerSource    = "source"
)

// BatchCompletedEvent is the audit record of one finished batch
type BatchCompletedEvent struct {
	EventID     uuid.UUID            `json:"event_id"`
	EventType   string               `json:"event_type"`
	Source      string               `json:"source"`
	BatchID     uuid.UUID            `json:"batch_id"`
	Phase       domain.Phase         `json:"phase"`
	Summary     domain.BatchSummary  `json:"summary"`
	Errors      []domain.RecordError `json:"errors,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// RiskAlertEvent wraps an alert raised for a CRITICAL customer
type RiskAlertEvent struct {
	EventID    uuid.UUID         `json:"event_id"`
	EventType  string            `json:"event_type"`
	Source     string            `json:"source"`
	Alert      *domain.RiskAlert `json:"alert"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewSyncProducer creates a sarama producer that waits for all in-sync replicas.
func NewSyncProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	if cfg.MaxRetries > 0 {
		sc.Producer.Retry.Max = cfg.MaxRetries
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	return producer, nil
}

// Publisher sends audit and alert events for finished batches
type Publisher struct {
	producer    sarama.SyncProducer
	alertsTopic string
	auditTopic  string
	source      string
	log         *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewPublisher wraps a producer. The metrics argument may be nil.
func NewPublisher(producer sarama.SyncProducer, cfg *config.KafkaConfig, log *logger.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		producer:    producer,
		alertsTopic: cfg.AlertsTopic,
		auditTopic:  cfg.AuditTopic,
		source:      log.ServiceName(),
		log:         log.Named("events"),
		metrics:     m,
		now:         time.Now,
	}
}

// PublishBatchCompleted writes the audit event for a batch, keyed by batch id.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, result *domain.BatchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := BatchCompletedEvent{
		EventID:     uuid.New(),
		EventType:   EventTypeBatchCompleted,
		Source:      p.source,
		BatchID:     result.BatchID,
		Phase:       result.Phase,
		Summary:     result.Summary,
		Errors:      result.Errors,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		OccurredAt:  p.now().UTC(),
	}
	msg, err := p.message(p.auditTopic, result.BatchID.String(), EventTypeBatchCompleted, event)
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(msg)
	p.metrics.IncrementEvent(p.auditTopic, err)
	if err != nil {
		return fmt.Errorf("publish batch %s: %w", result.BatchID, err)
	}
	return nil
}

// PublishAlerts raises one alert per CRITICAL entry, keyed by customer id so
// alerts for one customer stay ordered. It returns the alerts that were built.
func (p *Publisher) PublishAlerts(ctx context.Context, result *domain.BatchResult) ([]*domain.RiskAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	critical := result.CriticalEntries()
	if len(critical) == 0 {
		return nil, nil
	}

	now := p.now()
	alerts := make([]*domain.RiskAlert, 0, len(critical))
	msgs := make([]*sarama.ProducerMessage, 0, len(critical))
	for i := range critical {
		alert := domain.NewRiskAlert(result.BatchID, &critical[i], now)
		event := RiskAlertEvent{
			EventID:    uuid.New(),
			EventType:  EventTypeRiskAlert,
			Source:     p.source,
			Alert:      alert,
			OccurredAt: now.UTC(),
		}
		msg, err := p.message(p.alertsTopic, alert.CustomerID, EventTypeRiskAlert, event)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
		msgs = append(msgs, msg)
	}

	err := p.producer.SendMessages(msgs)
	var perrs sarama.ProducerErrors
	switch {
	case err == nil:
		for range msgs {
			p.metrics.IncrementEvent(p.alertsTopic, nil)
		}
	case errors.As(err, &perrs):
		for range perrs {
			p.metrics.IncrementEvent(p.alertsTopic, err)
		}
		for i := 0; i < len(msgs)-len(perrs); i++ {
			p.metrics.IncrementEvent(p.alertsTopic, nil)
		}
	default:
		p.metrics.IncrementEvent(p.alertsTopic, err)
	}
	if err != nil {
		return nil, fmt.Errorf("publish alerts for batch %s: %w", result.BatchID, err)
	}

	for _, a := range alerts {
		p.log.AlertCreated(a.ID.String(), string(a.AlertType), a.CustomerID, a.RiskScore)
	}
	return alerts, nil
}

// Publish sends the audit event and any alerts for a finished batch.
func (p *Publisher) Publish(ctx context.Context, result *domain.BatchResult) ([]*domain.RiskAlert, error) {
	if err := p.PublishBatchCompleted(ctx, result); err != nil {
		return nil, err
	}
	return p.PublishAlerts(ctx, result)
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

func (p *Publisher) message(topic, key, eventType string, payload any) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(eventType)},
			{Key: []byte(headerSource), Value: []byte(p.source)},
		},
	}, nil
}
