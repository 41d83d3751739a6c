// Package source implements the message-ingestion side of the bridge:
// StreamingClient, the single-source MessageSource wrapper, and the
// N-way fair-merging MultiSource.
package source

import (
	"context"
	"strings"
)

// ReplayFallback controls the replay position used when the marker store
// has no recorded position for a channel, matching the Streaming API
// replay-extension convention.
type ReplayFallback int

const (
	// NewEvents resumes from the tip of the channel, skipping history.
	NewEvents ReplayFallback = -1
	// AllEvents replays the full retained history of the channel.
	AllEvents ReplayFallback = -2
)

// ResourceKind distinguishes the two upstream subscription target shapes.
type ResourceKind int

const (
	PushTopic ResourceKind = iota
	StreamingChannel
)

// Resource is one upstream subscription target: either referenced (Name
// only, assumed to already exist) or declared (fully specified, created
// or ensured on Open).
type Resource struct {
	Kind ResourceKind

	// Durable marks the subscription as resumable: the upstream is asked
	// to retain events for replay across reconnects.
	Durable bool

	// Referenced form.
	ID   string
	Name string

	// Declared form (PushTopic).
	Declared            bool
	ApiVersion          float64
	Query               string
	IsActive            bool
	Description         string
	NotifyForFields     string
	NotifyForOperations string
	NotifyForCreate     *bool
	NotifyForUpdate     *bool
	NotifyForDelete     *bool
	NotifyForUndelete   *bool
}

// Channel returns the upstream channel name this resource subscribes to:
// "/topic/<name>" for push topics and "/u/<name>" for streaming channels,
// unless the name already carries a channel path.
func (r Resource) Channel() string {
	name := r.Name
	if name == "" {
		name = r.ID
	}
	if strings.HasPrefix(name, "/") {
		return name
	}
	if r.Kind == StreamingChannel {
		return "/u/" + name
	}
	return "/topic/" + name
}

// EventMeta carries the replay sequencing metadata nested under data.event.
type EventMeta struct {
	ReplayID int64
}

// Event is the envelope yielded by a StreamingClient.
type Event struct {
	Channel string
	Meta    EventMeta
	Payload map[string]any
}

// ToRoutingEvent builds the reflection-free structured view RoutingCondition
// evaluates against, matching the channel/data.event.replayId/data.payload
// shape described in the data model.
func (e Event) ToRoutingEvent() map[string]any {
	return map[string]any{
		"channel": e.Channel,
		"data": map[string]any{
			"event":   map[string]any{"replayId": e.Meta.ReplayID},
			"payload": e.Payload,
		},
	}
}

// Client is the narrow interface a concrete streaming protocol
// implementation must satisfy. It is treated as a library: the bridge core
// only depends on this contract.
type Client interface {
	// Open establishes the upstream session, ensures declared resources
	// exist, and subscribes to every resource's channel starting from
	// replayPositions (channel -> replay id, or a ReplayFallback sentinel
	// when absent).
	Open(ctx context.Context, resources []Resource, replayPositions map[string]int64) error

	// Events returns the channel events are delivered on. It is closed
	// when the client is closed or the upstream session ends.
	Events() <-chan Event

	// Close tears down the upstream session. Idempotent.
	Close(ctx context.Context) error
}

// Source is the pull interface the Orchestrator drives: satisfied by both
// MessageSource and MultiSource.
type Source interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Closed() bool
	HasPendingMessages() bool
	GetMessage(ctx context.Context) (sourceName string, evt Event, err error)
}
