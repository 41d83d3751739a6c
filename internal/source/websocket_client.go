package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/basinforge/streambridge/internal/logging"
)

// Credentials authenticates against the upstream streaming endpoint.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Username       string
	Password       string
}

// WebSocketClient is a reference StreamingClient built on a long-lived
// WebSocket connection.
type WebSocketClient struct {
	url         string
	credentials Credentials

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
}

// NewWebSocketClient constructs a client dialing url once opened.
func NewWebSocketClient(url string, credentials Credentials) *WebSocketClient {
	return &WebSocketClient{url: url, credentials: credentials}
}

type wireEnvelope struct {
	Channel string        `json:"channel"`
	Data    wireEventData `json:"data"`
}

type wireEventData struct {
	Event   wireEventMeta  `json:"event"`
	Payload map[string]any `json:"payload"`
}

type wireEventMeta struct {
	ReplayID int64 `json:"replayId"`
}

type wireSubscribe struct {
	Type      string           `json:"type"`
	Auth      wireAuth         `json:"auth"`
	Resources []wireResource   `json:"resources"`
	Positions map[string]int64 `json:"replay_positions"`
}

type wireAuth struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	Username       string `json:"username"`
	Password       string `json:"password"`
}

type wireResource struct {
	Channel string           `json:"channel"`
	Durable bool             `json:"durable,omitempty"`
	Declare *wireDeclaration `json:"declare,omitempty"`
}

// wireDeclaration carries a declared resource's full definition so the
// upstream can create it when it does not exist yet.
type wireDeclaration struct {
	Kind                string  `json:"kind"`
	Name                string  `json:"name"`
	ApiVersion          float64 `json:"api_version,omitempty"`
	Query               string  `json:"query,omitempty"`
	IsActive            bool    `json:"is_active"`
	Description         string  `json:"description,omitempty"`
	NotifyForFields     string  `json:"notify_for_fields,omitempty"`
	NotifyForOperations string  `json:"notify_for_operations,omitempty"`
	NotifyForCreate     *bool   `json:"notify_for_operation_create,omitempty"`
	NotifyForUpdate     *bool   `json:"notify_for_operation_update,omitempty"`
	NotifyForDelete     *bool   `json:"notify_for_operation_delete,omitempty"`
	NotifyForUndelete   *bool   `json:"notify_for_operation_undelete,omitempty"`
}

func declarationFor(r Resource) *wireDeclaration {
	if !r.Declared {
		return nil
	}
	kind := "PushTopic"
	if r.Kind == StreamingChannel {
		kind = "StreamingChannel"
	}
	return &wireDeclaration{
		Kind:                kind,
		Name:                r.Name,
		ApiVersion:          r.ApiVersion,
		Query:               r.Query,
		IsActive:            r.IsActive,
		Description:         r.Description,
		NotifyForFields:     r.NotifyForFields,
		NotifyForOperations: r.NotifyForOperations,
		NotifyForCreate:     r.NotifyForCreate,
		NotifyForUpdate:     r.NotifyForUpdate,
		NotifyForDelete:     r.NotifyForDelete,
		NotifyForUndelete:   r.NotifyForUndelete,
	}
}

// Open dials the endpoint and sends a single subscribe frame naming every
// resource channel and its starting replay position.
func (c *WebSocketClient) Open(ctx context.Context, resources []Resource, replayPositions map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	wireResources := make([]wireResource, 0, len(resources))
	for _, r := range resources {
		wireResources = append(wireResources, wireResource{Channel: r.Channel(), Durable: r.Durable, Declare: declarationFor(r)})
	}
	sub := wireSubscribe{
		Type: "subscribe",
		Auth: wireAuth{
			ConsumerKey:    c.credentials.ConsumerKey,
			ConsumerSecret: c.credentials.ConsumerSecret,
			Username:       c.credentials.Username,
			Password:       c.credentials.Password,
		},
		Resources: wireResources,
		Positions: replayPositions,
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.conn = conn
	c.events = make(chan Event, 256)
	c.done = make(chan struct{})
	go c.readLoop()
	return nil
}

func (c *WebSocketClient) readLoop() {
	log := logging.WithComponent("streaming-client")
	defer close(c.events)
	for {
		var env wireEnvelope
		if err := c.conn.ReadJSON(&env); err != nil {
			log.Debug().Err(err).Msg("streaming connection closed")
			return
		}
		select {
		case c.events <- Event{Channel: env.Channel, Meta: EventMeta{ReplayID: env.Data.Event.ReplayID}, Payload: env.Data.Payload}:
		case <-c.done:
			return
		}
	}
}

// Events implements Client.
func (c *WebSocketClient) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Close implements Client, idempotently.
func (c *WebSocketClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	close(c.done)
	err := c.conn.Close()
	c.conn = nil
	return err
}
