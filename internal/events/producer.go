// Package events streams the wire-level trip events to Kafka for downstream
// consumers (analytics, moderation). Emission happens after the state change
// commits and is fire-and-forget.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event names carried on the stream.
const (
	TripCreated        = "trip.created"
	TripExpired        = "trip.expired"
	TripStarted        = "trip.started"
	TripCompleted      = "trip.completed"
	TripCancelled      = "trip.cancelled"
	BookingRequested   = "booking.requested"
	BookingUpdated     = "booking.updated"
	PassengerLeft      = "passenger.left"
	PassengerInVehicle = "passenger.inVehicle"
	ChatMessage        = "chat.message"
	ChatClosed         = "chat.closed"
)

// envelope is the record shape written to the topic.
type envelope struct {
	Event     string    `json:"event"`
	TripID    string    `json:"trip_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Producer publishes trip events, keyed by trip id so one trip's events stay
// in partition order.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Kafka producer for the given brokers and topic.
func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Producer{writer: w, logger: logger}
}

// Publish writes one event. Errors are logged, never returned to the caller:
// the authoritative state change already committed.
func (p *Producer) Publish(event, tripID string, payload any) {
	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	value, err := json.Marshal(envelope{
		Event:     event,
		TripID:    tripID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		p.logger.Error("event marshal failed", "event", event, "error", err)
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(tripID), Value: value}); err != nil {
		p.logger.Error("event publish failed", "event", event, "trip_id", tripID, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
