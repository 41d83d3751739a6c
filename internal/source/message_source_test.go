package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/basinforge/streambridge/internal/bridgeerr"
	"github.com/basinforge/streambridge/internal/replay"
)

// fakeClient is a hermetic stand-in for a StreamingClient, used to drive
// MessageSource and MultiSource without a real upstream connection.
type fakeClient struct {
	events    chan Event
	openErr   error
	openCalls int
	positions map[string]int64
}

func newFakeClient(buffer int) *fakeClient {
	return &fakeClient{events: make(chan Event, buffer)}
}

func (f *fakeClient) Open(_ context.Context, _ []Resource, positions map[string]int64) error {
	f.openCalls++
	f.positions = positions
	return f.openErr
}

func (f *fakeClient) Events() <-chan Event { return f.events }

func (f *fakeClient) Close(_ context.Context) error {
	close(f.events)
	return nil
}

func TestMessageSourceOpenSeedsReplayFallback(t *testing.T) {
	client := newFakeClient(4)
	store := replay.NewMemoryStore()
	resources := []Resource{{Name: "Accounts"}}
	src := New("orgA", client, store, resources, NewEvents, time.Second)

	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := client.positions["/topic/Accounts"]; got != int64(NewEvents) {
		t.Fatalf("expected fallback position %d, got %d", NewEvents, got)
	}
}

func TestMessageSourceOpenSeedsStoredMarker(t *testing.T) {
	client := newFakeClient(4)
	store := replay.NewMemoryStore()
	_ = store.Set(context.Background(), "orgA", "/topic/Accounts", 77)
	resources := []Resource{{Name: "Accounts"}}
	src := New("orgA", client, store, resources, NewEvents, time.Second)

	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := client.positions["/topic/Accounts"]; got != 77 {
		t.Fatalf("expected stored position 77, got %d", got)
	}
}

func TestMessageSourceGetMessageDeliversAndClosed(t *testing.T) {
	client := newFakeClient(4)
	store := replay.NewMemoryStore()
	src := New("orgA", client, store, nil, NewEvents, time.Second)

	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if src.Closed() {
		t.Fatal("expected source to report open")
	}

	client.events <- Event{Channel: "/topic/x", Meta: EventMeta{ReplayID: 1}}

	name, evt, err := src.GetMessage(context.Background())
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if name != "orgA" || evt.Channel != "/topic/x" {
		t.Fatalf("unexpected message: %q %+v", name, evt)
	}

	if err := src.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !src.Closed() {
		t.Fatal("expected source to report closed")
	}
}

func TestMessageSourceGetMessageCancelledOnClose(t *testing.T) {
	client := newFakeClient(1)
	store := replay.NewMemoryStore()
	src := New("orgA", client, store, nil, NewEvents, time.Second)
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := src.GetMessage(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := src.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, bridgeerr.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GetMessage did not unblock on close")
	}
}

func TestMessageSourceHasPendingMessages(t *testing.T) {
	client := newFakeClient(4)
	store := replay.NewMemoryStore()
	src := New("orgA", client, store, nil, NewEvents, time.Second)
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if src.HasPendingMessages() {
		t.Fatal("expected no pending messages yet")
	}
	client.events <- Event{Channel: "/topic/x"}
	if !src.HasPendingMessages() {
		t.Fatal("expected a pending message")
	}
}
