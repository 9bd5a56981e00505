package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"slackrelay/internal/domain"
	"slackrelay/internal/format"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Relayer formats and delivers a message. relay.Service implements it.
type Relayer interface {
	Relay(ctx context.Context, msg domain.Message) domain.RelayResult
}

// Slack receives direct messages over Socket Mode and relays them.
type Slack struct {
	botToken string
	appToken string
	apiURL   string
	relayer  Relayer
	logger   *slog.Logger
	botUID   string // the bot's own user ID, to avoid relaying itself

	wg sync.WaitGroup
}

// SlackConfig configures the Slack DM source.
type SlackConfig struct {
	BotToken string
	AppToken string
	APIURL   string // tests only
	Relayer  Relayer
	Logger   *slog.Logger
}

// NewSlack creates a new Slack DM source.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		apiURL:   cfg.APIURL,
		relayer:  cfg.Relayer,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and relays DMs until ctx is done.
// In-flight relays are waited for before it returns.
func (s *Slack) Start(ctx context.Context) error {
	opts := []slack.Option{slack.OptionAppLevelToken(s.appToken)}
	if s.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(s.apiURL))
	}
	api := slack.New(s.botToken, opts...)

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)

	// The loop stops before wg.Wait so no relay is added while waiting.
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.dispatch(loopCtx, socketClient.Events, func(req socketmode.Request) { socketClient.Ack(req) })
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
	case runErr = <-errCh:
	}
	stopLoop()
	<-loopDone
	s.wg.Wait()

	if runErr != nil {
		return fmt.Errorf("slack socket mode: %w", runErr)
	}
	return nil
}

// dispatch handles Socket Mode events until ctx is done or events closes.
func (s *Slack) dispatch(ctx context.Context, events <-chan socketmode.Event, ack func(socketmode.Request)) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				s.logger.Info("socket mode connected")

			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					ack(*evt.Request)
				}
				s.handleEventsAPI(ctx, eventsAPIEvent)

			default:
				// Acknowledge unknown events to prevent Socket Mode disconnection.
				if evt.Request != nil {
					ack(*evt.Request)
				}
			}
		}
	}
}

func (s *Slack) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent || ctx.Err() != nil {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	msg, ok := s.directMessage(ev)
	if !ok {
		return
	}

	s.logger.Info("direct message received",
		"user", msg.SenderID,
		"channel", ev.Channel,
		"content_len", len(msg.Text),
	)

	// Relays can wait out retries; keep the event loop free.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.relay(ctx, msg)
	}()
}

// directMessage converts ev into a message, reporting false for events
// that must not be relayed: non-DM channels, subtypes, bots, blank text.
func (s *Slack) directMessage(ev *slackevents.MessageEvent) (domain.Message, bool) {
	if ev.ChannelType != "im" || ev.SubType != "" || ev.BotID != "" {
		return domain.Message{}, false
	}
	if ev.User == "" || ev.User == s.botUID {
		return domain.Message{}, false
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return domain.Message{}, false
	}

	msg := domain.Message{
		Source:   domain.SourceDirectMessage,
		SenderID: ev.User,
		Text:     text,
	}
	if ts, ok := format.ParseSlackTimestamp(ev.TimeStamp); ok {
		msg.Timestamp = ts
	}
	return msg, true
}

// relay delivers a DM. Failures are only logged; there is no one to
// answer.
func (s *Slack) relay(ctx context.Context, msg domain.Message) {
	res := s.relayer.Relay(ctx, msg)
	if !res.Delivered {
		s.logger.Error("direct message relay failed",
			"user", msg.SenderID,
			"error_kind", res.ErrorKind,
			"attempts", res.Attempts,
		)
		return
	}
	s.logger.Info("direct message relayed", "user", msg.SenderID, "attempts", res.Attempts)
}
