package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
)

// Record is the stream representation of a delivered broadcast.
type Record struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	ProductID     string    `json:"product_id"`
	SKU           string    `json:"sku"`
	Source        string    `json:"source"`
	Name          string    `json:"name"`
	URL           string    `json:"url,omitempty"`
	ChannelID     string    `json:"channel_id"`
	PreviousPrice *string   `json:"previous_price,omitempty"`
	CurrentPrice  string    `json:"current_price"`
	PercentChange *string   `json:"percent_change,omitempty"`
	DeliveredAt   time.Time `json:"delivered_at"`
}

// NewRecord captures a delivered event.
func NewRecord(ev alerting.Event, channelID string, at time.Time) Record {
	rec := Record{
		ID:           uuid.NewString(),
		Kind:         ev.Kind.String(),
		ProductID:    ev.Product.ID,
		SKU:          ev.Product.SKU,
		Source:       ev.Product.Source,
		Name:         ev.Product.Name,
		URL:          ev.Product.URL,
		ChannelID:    channelID,
		CurrentPrice: ev.CurrentPrice.String(),
		DeliveredAt:  at.UTC(),
	}
	if ev.PreviousPrice.Valid {
		s := ev.PreviousPrice.Decimal.String()
		rec.PreviousPrice = &s
	}
	if ev.PercentChange.Valid {
		s := ev.PercentChange.Decimal.StringFixed(4)
		rec.PercentChange = &s
	}
	return rec
}

// Sink receives delivered broadcasts.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors delivered alerts onto a Kafka topic keyed by product.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink builds a synchronous writer on the given brokers.
func NewKafkaSink(brokers []string, topic string, writeTimeout time.Duration) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}
}

func (k *KafkaSink) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.ProductID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(rec.Kind)},
			{Key: "record_id", Value: []byte(rec.ID)},
		},
		Time: rec.DeliveredAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

var _ Sink = (*KafkaSink)(nil)
