package channel

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"slackrelay/internal/domain"

	"github.com/slack-go/slack"
)

// SlackClient posts relayed messages to one Slack channel.
// It implements domain.DeliveryClient.
type SlackClient struct {
	api       *slack.Client
	channelID string
	logger    *slog.Logger
}

// SlackClientConfig configures a SlackClient.
type SlackClientConfig struct {
	BotToken  string
	ChannelID string
	APIURL    string // overrides https://slack.com/api/, tests only
	Logger    *slog.Logger
}

// NewSlackClient creates a delivery client for cfg.ChannelID.
func NewSlackClient(cfg SlackClientConfig) *SlackClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := []slack.Option{}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &SlackClient{
		api:       slack.New(cfg.BotToken, opts...),
		channelID: cfg.ChannelID,
		logger:    cfg.Logger,
	}
}

// API exposes the underlying client for lookups that share its credentials.
func (c *SlackClient) API() *slack.Client { return c.api }

// WithChannel returns a client that posts to channelID with the same credentials.
func (c *SlackClient) WithChannel(channelID string) *SlackClient {
	return &SlackClient{api: c.api, channelID: channelID, logger: c.logger}
}

// Deliver makes one chat.postMessage call. Text is sent unescaped; the
// formatter has already escaped it.
func (c *SlackClient) Deliver(ctx context.Context, text string) domain.DeliveryOutcome {
	_, ts, err := c.api.PostMessageContext(ctx, c.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		out := classifyError(err)
		c.logger.Debug("slack post failed", "channel", c.channelID, "error_kind", out.ErrorKind, "err", err)
		return out
	}
	c.logger.Debug("slack post ok", "channel", c.channelID, "ts", ts)
	return domain.Delivered()
}

// classifyError maps a slack-go error onto an upstream error code.
func classifyError(err error) domain.DeliveryOutcome {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return domain.Failure(domain.ErrorKindRateLimited, rateLimited.RetryAfter)
	}

	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) && apiErr.Err != "" {
		return domain.Failure(domain.ErrorKind(apiErr.Err), 0)
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return domain.Failure(statusKind(statusErr.Code), 0)
	}

	if errors.Is(err, context.Canceled) {
		return domain.Failure(domain.ErrorKindCancelled, 0)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Failure(domain.ErrorKindRequestTimeout, 0)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.Failure(domain.ErrorKindRequestTimeout, 0)
		}
		return domain.Failure(domain.ErrorKindServiceUnavailable, 0)
	}
	return domain.Failure(domain.ErrorKindUnknown, 0)
}

func statusKind(code int) domain.ErrorKind {
	switch code {
	case http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.ErrorKindRequestTimeout
	case http.StatusInternalServerError:
		return domain.ErrorKindInternal
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return domain.ErrorKindServiceUnavailable
	}
	if code > 500 {
		return domain.ErrorKindServiceUnavailable
	}
	return domain.ErrorKindUnknown
}
