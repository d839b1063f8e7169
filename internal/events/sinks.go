package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// LogSink writes events to the process logger
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink backed by logger
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, e Event) error {
	entry := s.logger.WithFields(logrus.Fields{
		"event":    e.Type,
		"severity": e.Severity,
	})
	if e.RunID != "" {
		entry = entry.WithField("run_id", e.RunID)
	}
	if len(e.Fields) > 0 {
		entry = entry.WithFields(logrus.Fields(e.Fields))
	}
	switch e.Severity {
	case SeverityError:
		entry.Error(e.Message)
	case SeverityWarning:
		entry.Warn(e.Message)
	default:
		entry.Info(e.Message)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

// AMQPConfig configures the RabbitMQ sink
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPSink publishes events as JSON to a durable direct exchange
type AMQPSink struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPSink dials RabbitMQ and declares the exchange
func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPSink{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Deliver(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.channel.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         e.Type,
		Timestamp:    e.Time,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
