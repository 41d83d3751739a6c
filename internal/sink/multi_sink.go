package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/basinforge/streambridge/internal/bridgeerr"
)

// MultiSink holds a name-indexed set of BrokerSinks and dispatches publishes
// to the named broker.
type MultiSink struct {
	brokers map[string]Broker
}

// NewMultiSink constructs a MultiSink over the given name -> Broker map.
func NewMultiSink(brokers map[string]Broker) *MultiSink {
	return &MultiSink{brokers: brokers}
}

// Open opens every registered broker.
func (m *MultiSink) Open(ctx context.Context) error {
	for name, broker := range m.brokers {
		if err := broker.Open(ctx); err != nil {
			return fmt.Errorf("open broker %q: %w", name, err)
		}
	}
	return nil
}

// Publish dispatches to the named broker; an unknown name fails with
// bridgeerr.MessageSinkError.
func (m *MultiSink) Publish(ctx context.Context, brokerName, exchange, routingKey string, message any, properties map[string]string) error {
	broker, ok := m.brokers[brokerName]
	if !ok {
		return bridgeerr.NewMessageSinkError(brokerName, fmt.Errorf("unknown broker"))
	}
	return broker.Publish(ctx, exchange, routingKey, message, properties)
}

// Close closes every registered broker, aggregating errors best-effort.
func (m *MultiSink) Close(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, 0, len(m.brokers))
	var mu sync.Mutex
	for _, broker := range m.brokers {
		wg.Add(1)
		go func(b Broker) {
			defer wg.Done()
			if err := b.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(broker)
	}
	wg.Wait()
	return errors.Join(errs...)
}
