// Package orchestrator drives the bridge: it pumps messages out of the
// source, schedules one forwarding task per message, and shuts the whole
// pipeline down cleanly on cancellation or fatal error.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/basinforge/streambridge/internal/bridgeerr"
	"github.com/basinforge/streambridge/internal/logging"
	"github.com/basinforge/streambridge/internal/metrics"
	"github.com/basinforge/streambridge/internal/replay"
	"github.com/basinforge/streambridge/internal/routing"
	"github.com/basinforge/streambridge/internal/source"
)

// State names the orchestrator's lifecycle phase.
type State int

const (
	// Idle means constructed but not yet running.
	Idle State = iota
	// Configured means dependencies are validated and the run is starting.
	Configured
	// Running means the pump is pulling and scheduling forwards.
	Running
	// Draining means the source is closed and in-flight tasks are being awaited.
	Draining
	// Stopped means every component has been released.
	Stopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Sink is the publish surface the orchestrator forwards into, satisfied by
// sink.MultiSink.
type Sink interface {
	Open(ctx context.Context) error
	Publish(ctx context.Context, brokerName, exchange, routingKey string, message any, properties map[string]string) error
	Close(ctx context.Context) error
}

// SourceMessagePair identifies the message an in-flight task is forwarding.
type SourceMessagePair struct {
	SourceName string
	Event      source.Event
}

// Options tunes the orchestrator's error tolerance.
type Options struct {
	// IgnoreSinkErrors makes MessageSinkError non-fatal: the failed message
	// is logged and dropped without committing its replay marker.
	IgnoreSinkErrors bool
}

// Orchestrator owns the source, sink, router, replay store, and the
// in-flight task set for the lifetime of one run.
type Orchestrator struct {
	source source.Source
	sink   Sink
	router *routing.Router
	store  replay.Store
	opts   Options

	mu       sync.Mutex
	state    State
	inFlight map[uint64]SourceMessagePair
	nextID   uint64
	fatal    error

	wg         sync.WaitGroup
	cancelPump context.CancelFunc
	taskCtx    context.Context
}

// New constructs an Orchestrator in the Idle state.
func New(src source.Source, snk Sink, router *routing.Router, store replay.Store, opts Options) *Orchestrator {
	return &Orchestrator{
		source:   src,
		sink:     snk,
		router:   router,
		store:    store,
		opts:     opts,
		state:    Idle,
		inFlight: make(map[uint64]SourceMessagePair),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// InFlight returns the number of forwarding tasks currently scheduled.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run opens the source and sink, pumps messages until ctx is cancelled or a
// fatal error occurs, then drains: the source is closed, in-flight tasks
// are awaited, and the sink is closed. It returns nil after an orderly
// cancellation and the fatal error otherwise.
func (o *Orchestrator) Run(ctx context.Context) error {
	log := logging.WithComponent("orchestrator")

	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: run called in state %s", o.state)
	}
	if o.source == nil || o.sink == nil || o.router == nil || o.store == nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: missing dependency")
	}
	o.state = Configured
	o.mu.Unlock()

	if err := o.sink.Open(ctx); err != nil {
		o.setState(Stopped)
		return err
	}
	if err := o.source.Open(ctx); err != nil {
		if cerr := o.sink.Close(context.Background()); cerr != nil {
			log.Warn().Err(cerr).Msg("error closing sink after failed source open")
		}
		o.setState(Stopped)
		return err
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelPump = cancel
	// In-flight forwards outlive the pump: cancellation stops scheduling
	// new work, never work already scheduled.
	o.taskCtx = context.WithoutCancel(ctx)
	o.state = Running
	o.mu.Unlock()
	log.Info().Msg("bridge running")

	o.pump(pumpCtx)

	o.setState(Draining)
	log.Info().Int("in_flight", o.InFlight()).Msg("draining")

	// Shutdown I/O runs on a fresh context: ctx is usually already
	// cancelled when we get here.
	if err := o.source.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("error closing source during drain")
	}
	o.wg.Wait()
	if err := o.sink.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("error closing sink during drain")
	}
	cancel()
	o.setState(Stopped)

	o.mu.Lock()
	fatal := o.fatal
	o.mu.Unlock()
	if fatal != nil {
		log.Error().Err(fatal).Msg("bridge stopped on fatal error")
		return fatal
	}
	log.Info().Msg("bridge stopped")
	return nil
}

// pump pulls messages and schedules forwards until cancellation or a fatal
// task failure. It is the only writer that inserts into the in-flight set.
func (o *Orchestrator) pump(ctx context.Context) {
	for !o.source.Closed() {
		if ctx.Err() != nil {
			return
		}
		name, evt, err := o.source.GetMessage(ctx)
		if err != nil {
			if !errors.Is(err, bridgeerr.ErrCancelled) {
				o.recordFatal(err)
			}
			return
		}
		o.schedule(name, evt)
	}
}

// schedule registers one forwarding task and starts it.
func (o *Orchestrator) schedule(sourceName string, evt source.Event) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.inFlight[id] = SourceMessagePair{SourceName: sourceName, Event: evt}
	taskCtx := o.taskCtx
	o.mu.Unlock()

	metrics.TaskStarted()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.forward(taskCtx, sourceName, evt)
		o.complete(id, err)
	}()
}

// complete is the per-task completion hook: it removes the task from the
// in-flight set and records a fatal result. It never blocks on network I/O.
func (o *Orchestrator) complete(id uint64, err error) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
	metrics.TaskFinished()
	if err != nil {
		o.recordFatal(err)
	}
}

// recordFatal stores the first fatal error and cancels the pump so the run
// enters drain.
func (o *Orchestrator) recordFatal(err error) {
	o.mu.Lock()
	if o.fatal == nil {
		o.fatal = err
	}
	cancel := o.cancelPump
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// forward routes and publishes one message, committing its replay marker on
// success. A MessageSinkError is swallowed when IgnoreSinkErrors is set;
// every other error is fatal.
func (o *Orchestrator) forward(ctx context.Context, sourceName string, evt source.Event) error {
	log := logging.WithComponent("orchestrator").With().
		Str("source", sourceName).
		Str("channel", evt.Channel).
		Int64("replay_id", evt.Meta.ReplayID).
		Logger()
	started := time.Now()

	envelope := evt.ToRoutingEvent()
	route := o.router.FindRoute(sourceName, routing.Event(envelope))
	if route == nil {
		log.Warn().Msg("no route matched, dropping message")
		metrics.RecordDropped(sourceName)
		return nil
	}

	err := o.sink.Publish(ctx, route.BrokerName, route.ExchangeName, route.RoutingKey, envelope, route.Properties)
	if err != nil {
		var sinkErr *bridgeerr.MessageSinkError
		if errors.As(err, &sinkErr) && o.opts.IgnoreSinkErrors {
			log.Error().Err(err).Str("broker", route.BrokerName).Msg("sink error ignored, message lost")
			metrics.RecordSinkError(route.BrokerName, true)
			return nil
		}
		if errors.As(err, &sinkErr) {
			metrics.RecordSinkError(sinkErr.Broker, false)
		}
		return err
	}

	log.Info().
		Str("broker", route.BrokerName).
		Str("exchange", route.ExchangeName).
		Str("routing_key", route.RoutingKey).
		Msg("message forwarded")
	metrics.RecordForwarded(sourceName, route.BrokerName)
	metrics.ObserveForwardDuration(sourceName, time.Since(started).Seconds())

	if err := o.store.Set(ctx, sourceName, evt.Channel, evt.Meta.ReplayID); err != nil {
		return err
	}
	metrics.RecordMarkerCommit(sourceName)
	return nil
}
