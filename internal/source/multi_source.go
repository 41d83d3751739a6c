package source

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/basinforge/streambridge/internal/bridgeerr"
)

// MultiSource fairly merges N MessageSources (or any Source) into a single
// pull interface.
type MultiSource struct {
	children []Source

	mu      sync.Mutex
	opened  []bool
	out     chan pulled
	runOnce sync.Once
	cancel  context.CancelFunc
}

type pulled struct {
	name string
	evt  Event
	err  error
}

// NewMultiSource wraps the given children for fair N-way merging.
func NewMultiSource(children ...Source) *MultiSource {
	return &MultiSource{
		children: children,
		opened:   make([]bool, len(children)),
		out:      make(chan pulled),
	}
}

// Open concurrently opens every child. On any child failure, already-opened
// children are closed and the first error is returned.
func (m *MultiSource) Open(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, child := range m.children {
		i, child := i, child
		g.Go(func() error {
			if err := child.Open(gctx); err != nil {
				return err
			}
			mu.Lock()
			m.opened[i] = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, child := range m.children {
			if m.opened[i] {
				_ = child.Close(context.Background())
				m.opened[i] = false
			}
		}
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.runOnce.Do(func() {
		for _, child := range m.children {
			go m.pump(pumpCtx, child)
		}
	})
	return nil
}

// pump continuously pulls from one child and forwards onto the shared
// output channel; run once per child for the life of the MultiSource,
// approximating a fair round-robin merge since each child's goroutine
// contends for the same unbuffered channel independently of the others.
func (m *MultiSource) pump(ctx context.Context, child Source) {
	for {
		name, evt, err := child.GetMessage(ctx)
		if err != nil {
			if errors.Is(err, bridgeerr.ErrCancelled) {
				return
			}
		}
		select {
		case m.out <- pulled{name: name, evt: evt, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Close concurrently closes all children, collecting errors from all of
// them even when some fail.
func (m *MultiSource) Close(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	var wg sync.WaitGroup
	errs := make([]error, len(m.children))
	for i, child := range m.children {
		wg.Add(1)
		go func(i int, child Source) {
			defer wg.Done()
			errs[i] = child.Close(ctx)
		}(i, child)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Closed reports true iff every child is closed.
func (m *MultiSource) Closed() bool {
	for _, child := range m.children {
		if !child.Closed() {
			return false
		}
	}
	return true
}

// HasPendingMessages reports true iff any child has a pending event.
func (m *MultiSource) HasPendingMessages() bool {
	for _, child := range m.children {
		if child.HasPendingMessages() {
			return true
		}
	}
	return false
}

// GetMessage returns the next event from whichever child produces one
// first.
func (m *MultiSource) GetMessage(ctx context.Context) (string, Event, error) {
	select {
	case p := <-m.out:
		return p.name, p.evt, p.err
	case <-ctx.Done():
		return "", Event{}, bridgeerr.ErrCancelled
	}
}
