package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"slackrelay/internal/domain"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

type fakeRelayer struct {
	mu     sync.Mutex
	msgs   []domain.Message
	result domain.RelayResult
}

func (f *fakeRelayer) Relay(_ context.Context, msg domain.Message) domain.RelayResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.result
}

func newTestSlack(relayer Relayer) *Slack {
	s := NewSlack(SlackConfig{Relayer: relayer, Logger: testLogger()})
	s.botUID = "UBOT"
	return s
}

func callbackEvent(ev *slackevents.MessageEvent) slackevents.EventsAPIEvent {
	return slackevents.EventsAPIEvent{
		Type:       slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{Type: "message", Data: ev},
	}
}

func TestSlack_RelaysDirectMessage(t *testing.T) {
	relayer := &fakeRelayer{result: domain.RelayResult{Delivered: true, Attempts: 1}}
	s := newTestSlack(relayer)

	s.handleEventsAPI(context.Background(), callbackEvent(&slackevents.MessageEvent{
		User:        "U123",
		Text:        "  need help with deploy  ",
		TimeStamp:   "1700000000.000100",
		Channel:     "D1",
		ChannelType: "im",
	}))
	s.wg.Wait()

	if len(relayer.msgs) != 1 {
		t.Fatalf("expected 1 relay, got %d", len(relayer.msgs))
	}
	msg := relayer.msgs[0]
	if msg.Source != domain.SourceDirectMessage || msg.SenderID != "U123" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Text != "need help with deploy" {
		t.Errorf("expected trimmed text, got %q", msg.Text)
	}
	if !msg.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected timestamp %v", msg.Timestamp)
	}
}

func TestSlack_IgnoresNonRelayableEvents(t *testing.T) {
	tests := map[string]*slackevents.MessageEvent{
		"channel message": {User: "U1", Text: "hi", ChannelType: "channel"},
		"bot message":     {User: "U1", Text: "hi", ChannelType: "im", BotID: "B1"},
		"edited":          {User: "U1", Text: "hi", ChannelType: "im", SubType: "message_changed"},
		"own message":     {User: "UBOT", Text: "hi", ChannelType: "im"},
		"no user":         {Text: "hi", ChannelType: "im"},
		"blank text":      {User: "U1", Text: " \n ", ChannelType: "im"},
	}
	for name, ev := range tests {
		t.Run(name, func(t *testing.T) {
			relayer := &fakeRelayer{}
			s := newTestSlack(relayer)
			s.handleEventsAPI(context.Background(), callbackEvent(ev))
			s.wg.Wait()
			if len(relayer.msgs) != 0 {
				t.Errorf("expected no relay, got %+v", relayer.msgs)
			}
		})
	}
}

func TestSlack_MissingTimestampLeavesZero(t *testing.T) {
	s := newTestSlack(&fakeRelayer{})
	msg, ok := s.directMessage(&slackevents.MessageEvent{User: "U1", Text: "hi", ChannelType: "im"})
	if !ok {
		t.Fatal("expected relayable message")
	}
	if !msg.Timestamp.IsZero() {
		t.Errorf("expected zero timestamp, got %v", msg.Timestamp)
	}
}

func TestSlack_FailedRelayIsOnlyLogged(t *testing.T) {
	relayer := &fakeRelayer{result: domain.RelayResult{ErrorKind: domain.ErrorKindChannelNotFound, Attempts: 1}}
	s := newTestSlack(relayer)

	s.handleEventsAPI(context.Background(), callbackEvent(&slackevents.MessageEvent{
		User: "U1", Text: "hi", ChannelType: "im",
	}))
	s.wg.Wait()

	if len(relayer.msgs) != 1 {
		t.Fatalf("expected one relay attempt, got %d", len(relayer.msgs))
	}
}

func TestSlack_DispatchStopsOnCancel(t *testing.T) {
	relayer := &fakeRelayer{result: domain.RelayResult{Delivered: true, Attempts: 1}}
	s := newTestSlack(relayer)

	events := make(chan socketmode.Event) // never closed, like the Socket Mode client's
	var acked []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dispatch(ctx, events, func(req socketmode.Request) { acked = append(acked, req.EnvelopeID) })
	}()

	events <- socketmode.Event{
		Type:    socketmode.EventTypeEventsAPI,
		Data:    callbackEvent(&slackevents.MessageEvent{User: "U1", Text: "hello", ChannelType: "im"}),
		Request: &socketmode.Request{EnvelopeID: "env-1"},
	}
	events <- socketmode.Event{Type: socketmode.EventTypeConnected} // first event fully handled
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return after cancellation")
	}
	s.wg.Wait()

	if len(acked) != 1 || acked[0] != "env-1" {
		t.Errorf("expected env-1 acknowledged, got %v", acked)
	}
	if len(relayer.msgs) != 1 || relayer.msgs[0].Text != "hello" {
		t.Errorf("expected the received DM relayed, got %+v", relayer.msgs)
	}
}

func TestSlack_NoRelayAfterCancel(t *testing.T) {
	relayer := &fakeRelayer{}
	s := newTestSlack(relayer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.handleEventsAPI(ctx, callbackEvent(&slackevents.MessageEvent{User: "U1", Text: "late", ChannelType: "im"}))
	s.wg.Wait()

	if len(relayer.msgs) != 0 {
		t.Errorf("expected no relay once shutting down, got %+v", relayer.msgs)
	}
}
