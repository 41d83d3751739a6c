package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/basinforge/streambridge/internal/bridgeerr"
)

// AMQPSink is the BrokerSink implementation backed by RabbitMQ's
// amqp091-go client, publishing with publisher confirms enabled.
type AMQPSink struct {
	name string
	cfg  ConnectionConfig

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	confirm chan amqp.Confirmation

	// pubMu serializes publishes: the channel carries one outstanding
	// publisher confirm at a time.
	pubMu sync.Mutex
}

// NewAMQPSink constructs an AMQPSink for the named broker.
func NewAMQPSink(name string, cfg ConnectionConfig) *AMQPSink {
	return &AMQPSink{name: name, cfg: cfg}
}

func (s *AMQPSink) dsn() string {
	scheme := "amqp"
	if s.cfg.SSL {
		scheme = "amqps"
	}
	login, password := s.cfg.Login, s.cfg.Password
	if login == "" {
		login = "guest"
	}
	if password == "" {
		password = "guest"
	}
	vhost := s.cfg.VirtualHost
	if vhost == "" {
		vhost = "/"
	}
	port := s.cfg.Port
	if port == 0 {
		port = 5672
	}
	uri := amqp.URI{
		Scheme:   scheme,
		Host:     s.cfg.Host,
		Port:     port,
		Username: login,
		Password: password,
		Vhost:    vhost,
	}
	return uri.String()
}

// Open implements Broker.
func (s *AMQPSink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := amqp.DialConfig(s.dsn(), amqp.Config{})
	if err != nil {
		return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("dial: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("open channel: %w", err))
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("enable confirms: %w", err))
	}

	for _, ex := range s.cfg.Exchanges {
		if ex.Passive {
			err = ch.ExchangeDeclarePassive(ex.Name, string(ex.Type), ex.Durable, ex.AutoDelete, false, ex.NoWait, ex.Arguments)
		} else {
			err = ch.ExchangeDeclare(ex.Name, string(ex.Type), ex.Durable, ex.AutoDelete, false, ex.NoWait, ex.Arguments)
		}
		if err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("declare exchange %q: %w", ex.Name, err))
		}
	}

	s.conn = conn
	s.channel = ch
	s.confirm = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return nil
}

// Publish implements Broker: it serializes message as JSON, publishes it
// on exchange with routingKey, and waits for the broker's publisher
// confirm before returning success.
func (s *AMQPSink) Publish(ctx context.Context, exchange, routingKey string, message any, properties map[string]string) error {
	s.mu.Lock()
	ch := s.channel
	confirm := s.confirm
	s.mu.Unlock()

	if ch == nil {
		return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("sink not open"))
	}

	body, err := json.Marshal(message)
	if err != nil {
		return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("marshal message: %w", err))
	}

	headers := amqp.Table{}
	for k, v := range properties {
		headers[k] = v
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Headers:     headers,
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now(),
	})
	if err != nil {
		return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("publish: %w", err))
	}

	select {
	case confirmation, ok := <-confirm:
		if !ok || !confirmation.Ack {
			return bridgeerr.NewMessageSinkError(s.name, fmt.Errorf("broker did not acknowledge publish"))
		}
		return nil
	case <-ctx.Done():
		return bridgeerr.NewMessageSinkError(s.name, ctx.Err())
	}
}

// Close implements Broker, idempotently.
func (s *AMQPSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}
