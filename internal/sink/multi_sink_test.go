package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/basinforge/streambridge/internal/bridgeerr"
)

type fakeBroker struct {
	mu        sync.Mutex
	published []publishCall
	openErr   error
	closeErr  error
}

type publishCall struct {
	exchange   string
	routingKey string
	message    any
	properties map[string]string
}

func (f *fakeBroker) Open(context.Context) error { return f.openErr }

func (f *fakeBroker) Publish(_ context.Context, exchange, routingKey string, message any, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishCall{exchange, routingKey, message, properties})
	return nil
}

func (f *fakeBroker) Close(context.Context) error { return f.closeErr }

func TestMultiSinkDispatchesByName(t *testing.T) {
	b1 := &fakeBroker{}
	b2 := &fakeBroker{}
	multi := NewMultiSink(map[string]Broker{"b1": b1, "b2": b2})

	if err := multi.Publish(context.Background(), "b1", "e1", "k.a", map[string]string{"x": "1"}, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(b1.published) != 1 || len(b2.published) != 0 {
		t.Fatalf("expected dispatch to b1 only, got b1=%d b2=%d", len(b1.published), len(b2.published))
	}
}

func TestMultiSinkUnknownBrokerFails(t *testing.T) {
	multi := NewMultiSink(map[string]Broker{"b1": &fakeBroker{}})
	err := multi.Publish(context.Background(), "missing", "e1", "k", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown broker")
	}
	var sinkErr *bridgeerr.MessageSinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected MessageSinkError, got %T", err)
	}
}

func TestMultiSinkCloseAggregatesErrors(t *testing.T) {
	b1 := &fakeBroker{closeErr: errors.New("b1 failed")}
	b2 := &fakeBroker{}
	multi := NewMultiSink(map[string]Broker{"b1": b1, "b2": b2})

	err := multi.Close(context.Background())
	if err == nil {
		t.Fatal("expected aggregated close error")
	}
}
