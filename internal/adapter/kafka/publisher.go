// Package kafka publishes per-region collection outcomes to a Kafka topic
// so downstream monitoring can track run health. The publisher is optional
// and feature-flagged; the pipeline itself never depends on it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/agrovale/climate-collector/internal/domain"
)

// Publisher produces outcome events to the report topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the report topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes every outcome in the report and writes them in a
// single WriteMessages call. The region id is the message key so all
// outcomes for one region land on the same partition.
func (p *Publisher) Publish(ctx context.Context, report domain.Report) error {
	if len(report.Outcomes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(report.Outcomes))
	for i, outcome := range report.Outcomes {
		msg, err := outcomeMessage(report, outcome)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	p.logger.Info("report published", "outcomes", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// outcomeMessage marshals one region outcome into a Kafka message.
func outcomeMessage(report domain.Report, outcome domain.Outcome) (kafkago.Message, error) {
	data, err := json.Marshal(outcome)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outcome: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(outcome.Region),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "mode", Value: []byte(outcome.Mode)},
			{Key: "finished_at", Value: []byte(report.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
