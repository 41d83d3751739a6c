package source

import (
	"context"
	"sync"
	"time"

	"github.com/basinforge/streambridge/internal/bridgeerr"
	"github.com/basinforge/streambridge/internal/logging"
	"github.com/basinforge/streambridge/internal/replay"
)

// MessageSource binds a single StreamingClient to the shared
// ReplayMarkerStore: it seeds replay positions on open, and exposes a pull
// interface over the client's event channel.
type MessageSource struct {
	name              string
	client            Client
	store             replay.Store
	resources         []Resource
	replayFallback    ReplayFallback
	connectionTimeout time.Duration

	mu       sync.Mutex
	isOpen   bool
	events   <-chan Event
	closedCh chan struct{}
}

// New constructs a MessageSource for a single upstream org/source.
func New(name string, client Client, store replay.Store, resources []Resource, replayFallback ReplayFallback, connectionTimeout time.Duration) *MessageSource {
	return &MessageSource{
		name:              name,
		client:            client,
		store:             store,
		resources:         resources,
		replayFallback:    replayFallback,
		connectionTimeout: connectionTimeout,
	}
}

// Name returns the source's configured name.
func (s *MessageSource) Name() string { return s.name }

// Open establishes the upstream session, seeding each resource's replay
// position from the store (falling back to replayFallback when absent),
// bounded by connectionTimeout.
func (s *MessageSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isOpen {
		return nil
	}

	openCtx := ctx
	var cancel context.CancelFunc
	if s.connectionTimeout > 0 {
		openCtx, cancel = context.WithTimeout(ctx, s.connectionTimeout)
		defer cancel()
	}

	positions := make(map[string]int64, len(s.resources))
	for _, r := range s.resources {
		channel := r.Channel()
		if id, ok, err := s.store.Get(openCtx, s.name, channel); err != nil {
			return err
		} else if ok {
			positions[channel] = id
		} else {
			positions[channel] = int64(s.replayFallback)
		}
	}

	if err := s.client.Open(openCtx, s.resources, positions); err != nil {
		if openCtx.Err() == context.DeadlineExceeded {
			return bridgeerr.NewSourceConnectionTimeoutError(s.name, err)
		}
		return bridgeerr.NewSourceError(s.name, err)
	}

	s.events = s.client.Events()
	s.closedCh = make(chan struct{})
	s.isOpen = true
	return nil
}

// Close tears down the upstream session. Idempotent.
func (s *MessageSource) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen {
		return nil
	}
	err := s.client.Close(ctx)
	close(s.closedCh)
	s.isOpen = false
	if err != nil {
		log := logging.WithComponent("source")
		log.Warn().Err(err).Str("source", s.name).Msg("error closing source")
	}
	return nil
}

// Closed reports whether the source is not currently open.
func (s *MessageSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.isOpen
}

// HasPendingMessages reports whether at least one event is immediately
// available without blocking.
func (s *MessageSource) HasPendingMessages() bool {
	s.mu.Lock()
	events := s.events
	s.mu.Unlock()
	if events == nil {
		return false
	}
	return len(events) > 0
}

// GetMessage blocks until an event is available or the source is closed or
// ctx is cancelled, in which case it fails with bridgeerr.ErrCancelled.
func (s *MessageSource) GetMessage(ctx context.Context) (string, Event, error) {
	s.mu.Lock()
	events := s.events
	closedCh := s.closedCh
	s.mu.Unlock()

	if events == nil {
		return s.name, Event{}, bridgeerr.ErrCancelled
	}

	select {
	case evt, ok := <-events:
		if !ok {
			return s.name, Event{}, bridgeerr.ErrCancelled
		}
		return s.name, evt, nil
	case <-closedCh:
		return s.name, Event{}, bridgeerr.ErrCancelled
	case <-ctx.Done():
		return s.name, Event{}, bridgeerr.ErrCancelled
	}
}
