package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/basinforge/streambridge/internal/replay"
)

func newTestMessageSource(t *testing.T, name string, buffer int) (*MessageSource, *fakeClient) {
	t.Helper()
	client := newFakeClient(buffer)
	store := replay.NewMemoryStore()
	return New(name, client, store, nil, NewEvents, time.Second), client
}

func TestMultiSourceOpenAllOrNothing(t *testing.T) {
	okSrc, _ := newTestMessageSource(t, "orgA", 4)

	failingClient := newFakeClient(4)
	failingClient.openErr = errors.New("auth failed")
	store := replay.NewMemoryStore()
	failSrc := New("orgB", failingClient, store, nil, NewEvents, time.Second)

	multi := NewMultiSource(okSrc, failSrc)
	err := multi.Open(context.Background())
	if err == nil {
		t.Fatal("expected open to fail when a child fails")
	}
	if !okSrc.Closed() {
		t.Fatal("expected the already-opened child to be closed after a sibling failure")
	}
}

func TestMultiSourceFairMerge(t *testing.T) {
	srcA, clientA := newTestMessageSource(t, "orgA", 4096)
	srcB, clientB := newTestMessageSource(t, "orgB", 4096)
	multi := NewMultiSource(srcA, srcB)

	if err := multi.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	const total = 200
	for i := 0; i < total; i++ {
		clientA.events <- Event{Channel: "/topic/a", Meta: EventMeta{ReplayID: int64(i)}}
		clientB.events <- Event{Channel: "/topic/b", Meta: EventMeta{ReplayID: int64(i)}}
	}

	counts := map[string]int{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < total*2; i++ {
		name, _, err := multi.GetMessage(ctx)
		if err != nil {
			t.Fatalf("get message %d: %v", i, err)
		}
		counts[name]++
	}

	if counts["orgA"] < total/4 || counts["orgB"] < total/4 {
		t.Fatalf("expected both children to contribute a fair share, got %v", counts)
	}
}

func TestMultiSourceCloseAggregatesAndClosedReportsAll(t *testing.T) {
	srcA, _ := newTestMessageSource(t, "orgA", 4)
	srcB, _ := newTestMessageSource(t, "orgB", 4)
	multi := NewMultiSource(srcA, srcB)

	if err := multi.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if multi.Closed() {
		t.Fatal("expected multi source open after Open")
	}

	if err := multi.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !multi.Closed() {
		t.Fatal("expected all children closed after Close")
	}
}
