package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/pkg/models"
)

const RecommendationsServedTopic = "recommendations-served"

// Publisher emits analytics events about served recommendations. The
// events are never read back into ranking.
type Publisher interface {
	PublishRecommendationServed(ctx context.Context, event models.RecommendationServed) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are
// configured.
func NewPublisher(cfg *config.Config, logger *logrus.Logger) Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("Kafka brokers not configured, recommendation events disabled")
		return NoopPublisher{}
	}

	topic := cfg.Kafka.Topics.RecommendationsServed
	if topic == "" {
		topic = RecommendationsServedTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Key by request id
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return newKafkaPublisher(writer, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: logger,
	}
}

// NewRecommendationServed builds an event stamped with a fresh id and the
// current time.
func NewRecommendationServed(requestID string, seedIDs []int, recs []models.Recommendation, k int) models.RecommendationServed {
	resultIDs := make([]int, len(recs))
	for i, r := range recs {
		resultIDs[i] = r.ID
	}
	return models.RecommendationServed{
		EventID:   uuid.New().String(),
		RequestID: requestID,
		SeedIDs:   seedIDs,
		ResultIDs: resultIDs,
		K:         k,
		Timestamp: time.Now().UTC(),
	}
}

func (p *KafkaPublisher) PublishRecommendationServed(ctx context.Context, event models.RecommendationServed) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.RequestID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "result_count", Value: []byte(strconv.Itoa(len(event.ResultIDs)))},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithError(err).WithField("request_id", event.RequestID).Error("Failed to publish recommendation event")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"request_id": event.RequestID,
		"results":    len(event.ResultIDs),
		"topic":      p.topic,
	}).Debug("Recommendation event published")

	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	return nil
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) PublishRecommendationServed(context.Context, models.RecommendationServed) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
