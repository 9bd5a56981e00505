package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"slackrelay/internal/domain"
	"slackrelay/internal/format"
	"slackrelay/internal/metrics"
)

type latencyRecorder struct {
	mu      sync.Mutex
	sources []string
}

func (l *latencyRecorder) ObserveRelay(source string, _ time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, source)
}

func TestService_RelayFormatsAndLabels(t *testing.T) {
	client := &scriptedClient{outcomes: []domain.DeliveryOutcome{domain.Delivered()}}
	rec := &fakeRecorder{}
	lat := &latencyRecorder{}
	svc := NewService(ServiceConfig{
		Formatter: format.New(true),
		Engine:    newTestEngine(client, &recordingSleep{}, rec),
		Latency:   lat,
		Logger:    testLogger(),
	})

	msg := domain.Message{
		Source:   domain.SourceCallback,
		Text:     "Deploy completed",
		Metadata: domain.Metadata{{Key: "source", Value: "CI"}},
	}
	res := svc.Relay(context.Background(), msg)
	if !res.Delivered {
		t.Fatalf("expected delivered, got %+v", res)
	}
	if client.payloads[0] != "*Source:* CI\n\nDeploy completed" {
		t.Errorf("unexpected payload %q", client.payloads[0])
	}
	if len(rec.events) != 1 || rec.events[0].source != "CI" || rec.events[0].event != metrics.EventRelayed {
		t.Errorf("unexpected events %+v", rec.events)
	}
	if len(lat.sources) != 1 || lat.sources[0] != "CI" {
		t.Errorf("unexpected latency observations %v", lat.sources)
	}
}

func TestService_RejectsEmptyText(t *testing.T) {
	client := &scriptedClient{outcomes: []domain.DeliveryOutcome{domain.Delivered()}}
	rec := &fakeRecorder{}
	svc := NewService(ServiceConfig{
		Formatter: format.New(false),
		Engine:    newTestEngine(client, &recordingSleep{}, rec),
		Logger:    testLogger(),
	})
	res := svc.Relay(context.Background(), domain.Message{Source: domain.SourceDirectMessage, Text: "  "})
	if res.Delivered || res.ErrorKind != domain.ErrorKindInvalidMessage || res.Attempts != 0 {
		t.Errorf("expected invalid_message with no attempts, got %+v", res)
	}
	if client.Calls() != 0 {
		t.Error("empty messages must never reach the client")
	}
	if len(rec.events) != 1 || rec.events[0] != (recordedEvent{metrics.EventFailed, "direct_message", domain.ErrorKindInvalidMessage}) {
		t.Errorf("expected one failed invalid_message event, got %+v", rec.events)
	}
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		msg  domain.Message
		want string
	}{
		{domain.Message{Source: domain.SourceDirectMessage, Metadata: domain.Metadata{{Key: "source", Value: "x"}}}, "direct_message"},
		{domain.Message{Source: domain.SourceCallback, Metadata: domain.Metadata{{Key: "source", Value: "CI"}}}, "CI"},
		{domain.Message{Source: domain.SourceCallback}, "external"},
		{domain.Message{Source: domain.SourceCallback, Metadata: domain.Metadata{{Key: "source", Value: " "}}}, "external"},
	}
	for _, tt := range tests {
		if got := SourceLabel(tt.msg); got != tt.want {
			t.Errorf("SourceLabel(%+v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
