// Package sink implements the publish side of the bridge: BrokerSink and
// the name-indexed MultiSink that dispatches to the right broker.
package sink

import "context"

// ExchangeType enumerates the AMQP 0-9-1 exchange kinds the bridge supports.
type ExchangeType string

const (
	Fanout  ExchangeType = "fanout"
	Direct  ExchangeType = "direct"
	Topic   ExchangeType = "topic"
	Headers ExchangeType = "headers"
)

// ExchangeConfig declares one exchange a BrokerSink ensures on Open.
type ExchangeConfig struct {
	Name       string
	Type       ExchangeType
	Passive    bool
	Durable    bool
	AutoDelete bool
	NoWait     bool
	Arguments  map[string]any
}

// ConnectionConfig is a broker's AMQP connection parameters.
type ConnectionConfig struct {
	Host        string
	Port        int
	Login       string
	Password    string
	VirtualHost string
	SSL         bool
	VerifySSL   bool
	LoginMethod string
	Insist      bool
	Exchanges   []ExchangeConfig
}

// Broker is the narrow interface a concrete AMQP client implementation
// must satisfy.
type Broker interface {
	// Open establishes the connection, opens one publishing channel, and
	// declares every configured exchange.
	Open(ctx context.Context) error

	// Publish serializes message as JSON and publishes it on exchange with
	// routingKey; properties, if non-nil, is attached as broker message
	// properties.
	Publish(ctx context.Context, exchange, routingKey string, message any, properties map[string]string) error

	// Close closes the channel and connection. Idempotent.
	Close(ctx context.Context) error
}
