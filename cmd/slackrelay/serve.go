package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slackrelay/internal/channel"
	"slackrelay/internal/config"
	"slackrelay/internal/format"
	"slackrelay/internal/ingest"
	"slackrelay/internal/metrics"
	"slackrelay/internal/notify"
	"slackrelay/internal/relay"
	"slackrelay/internal/tracing"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// app holds the wired components of a running relay.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	client   *channel.SlackClient
	engine   *relay.Engine
	service  *relay.Service
	notifier *notify.Service
	webhook  *channel.Webhook
	slack    *channel.Slack // nil without an app-level token
}

// appOptions overrides external endpoints, for tests.
type appOptions struct {
	slackAPIURL string
	sleep       relay.SleepFunc
}

func newApp(cfg *config.Config, logger *slog.Logger, opts appOptions) *app {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewCollector()}

	a.client = channel.NewSlackClient(channel.SlackClientConfig{
		BotToken:  cfg.Slack.BotToken,
		ChannelID: cfg.Slack.ChannelID,
		APIURL:    opts.slackAPIURL,
		Logger:    logger,
	})

	policy := relay.Policy{
		MaxRetries: cfg.Relay.MaxRetries,
		BaseDelay:  cfg.Relay.BaseDelay(),
	}
	a.engine = relay.NewEngine(relay.EngineConfig{
		Client:   a.client,
		Recorder: a.metrics,
		Policy:   policy,
		Sleep:    opts.sleep,
		Logger:   logger,
	})
	a.service = relay.NewService(relay.ServiceConfig{
		Formatter: format.New(cfg.Relay.IncludeMetadata),
		Engine:    a.engine,
		Latency:   a.metrics,
		Logger:    logger,
	})

	notifyEngine := relay.NewEngine(relay.EngineConfig{
		Client:   a.client.WithChannel(cfg.Notify.ChannelID),
		Recorder: a.metrics,
		Policy:   policy,
		Sleep:    opts.sleep,
		Logger:   logger,
	})
	a.notifier = notify.NewService(notify.ServiceConfig{
		Relayer:     notifyEngine,
		Groups:      a.client.API(),
		GroupHandle: cfg.Notify.GroupHandle,
		ChannelID:   cfg.Notify.ChannelID,
		Logger:      logger,
	})

	a.webhook = channel.NewWebhook(channel.WebhookConfig{
		Addr:        cfg.Server.Addr(),
		Path:        cfg.Webhook.Path,
		Async:       cfg.Webhook.Async,
		Gate:        ingest.NewGate(cfg.Webhook.APIKey),
		Relayer:     a.service,
		Notifier:    a.notifier,
		Metrics:     a.metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})

	if cfg.Slack.AppToken != "" {
		a.slack = channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
			APIURL:   opts.slackAPIURL,
			Relayer:  a.service,
			Logger:   logger,
		})
	}
	return a
}

// run serves until ctx is done or a component fails.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.webhook.Start(ctx) })
	if a.slack != nil {
		g.Go(func() error { return a.slack.Start(ctx) })
	} else {
		a.logger.Warn("SLACK_APP_TOKEN not set, direct messages will not be relayed")
	}
	if a.cfg.Webhook.APIKey == "" {
		a.logger.Warn("WEBHOOK_API_KEY not set, every webhook request will be rejected")
	}

	return g.Wait()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (webhook server and Slack Socket Mode)",
		Long:  "Starts the HTTP server and, when SLACK_APP_TOKEN is set, the Socket Mode listener for direct messages. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.RequireCredentials(cfg); err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "slackrelay",
		Version:     version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	logger.Info("slackrelay starting",
		"version", version,
		"channel", cfg.Slack.ChannelID,
		"max_retries", cfg.Relay.MaxRetries,
		"include_metadata", cfg.Relay.IncludeMetadata,
	)

	if err := newApp(cfg, logger, appOptions{}).run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
