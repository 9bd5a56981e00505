package relay

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"slackrelay/internal/domain"
	"slackrelay/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedClient returns outcomes in order, repeating the last one.
type scriptedClient struct {
	mu       sync.Mutex
	outcomes []domain.DeliveryOutcome
	calls    int
	payloads []string
}

func (c *scriptedClient) Deliver(_ context.Context, text string) domain.DeliveryOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, text)
	i := c.calls
	if i >= len(c.outcomes) {
		i = len(c.outcomes) - 1
	}
	c.calls++
	return c.outcomes[i]
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func alwaysFail(kind domain.ErrorKind) *scriptedClient {
	return &scriptedClient{outcomes: []domain.DeliveryOutcome{domain.Failure(kind, 0)}}
}

// recordingSleep records requested waits without blocking.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type recordedEvent struct {
	event  metrics.Event
	source string
	kind   domain.ErrorKind
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) Record(event metrics.Event, source string, kind domain.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event, source, kind})
}

func (r *fakeRecorder) count(event metrics.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func newTestEngine(client domain.DeliveryClient, sleep *recordingSleep, rec *fakeRecorder) *Engine {
	return NewEngine(EngineConfig{
		Client:   client,
		Recorder: rec,
		Policy:   DefaultPolicy(),
		Sleep:    sleep.Sleep,
		Logger:   testLogger(),
	})
}
