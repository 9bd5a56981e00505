package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slackrelay/internal/domain"
	"slackrelay/internal/format"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"golang.org/x/sync/singleflight"
)

// SourceLabel is the metrics source for cluster notifications.
const SourceLabel = "cluster_notify"

// PayloadRelayer delivers preformatted text with retries. relay.Engine
// implements it.
type PayloadRelayer interface {
	Relay(ctx context.Context, source, payload string) domain.RelayResult
}

// GroupLister lists workspace user groups. *slack.Client implements it.
type GroupLister interface {
	GetUserGroupsContext(ctx context.Context, options ...slack.GetUserGroupsOption) ([]slack.UserGroup, error)
}

// Service formats notifications, mentions the operators' group and relays
// them to the notifications channel.
type Service struct {
	relayer     PayloadRelayer
	groups      GroupLister
	groupHandle string
	channelID   string
	logger      *slog.Logger
	now         func() time.Time

	lookup  singleflight.Group
	mu      sync.Mutex
	groupID string // cached once found
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Relayer     PayloadRelayer
	Groups      GroupLister // optional; mentions fall back to @handle
	GroupHandle string
	ChannelID   string
	Logger      *slog.Logger
}

// NewService creates a notification service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		relayer:     cfg.Relayer,
		groups:      cfg.Groups,
		groupHandle: cfg.GroupHandle,
		channelID:   cfg.ChannelID,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Send renders and relays req. Every call gets a fresh notification ID,
// including failed ones.
func (s *Service) Send(ctx context.Context, req Request) Result {
	res := Result{ID: uuid.NewString(), Channel: s.channelID, Timestamp: s.now().UTC()}
	logger := s.logger.With("notification_id", res.ID, "cluster_id", req.ClusterID)

	if s.channelID == "" {
		logger.Error("NOTIFICATIONS_CHANNEL_ID not configured")
		res.Error = "NOTIFICATIONS_CHANNEL_ID not configured"
		return res
	}

	body, err := Render(req)
	if err != nil {
		logger.Error("render notification", "err", err)
		res.Error = err.Error()
		return res
	}
	if mention := s.mention(ctx); mention != "" {
		body = mention + "\n\n" + body
	}

	logger.Info("sending cluster notification", "notification_type", req.Type)
	out := s.relayer.Relay(ctx, SourceLabel, format.Truncate(body))
	if !out.Delivered {
		res.Error = string(out.ErrorKind)
		return res
	}
	res.Sent = true
	return res
}

// mention returns the Slack mention for the configured group, looking the
// group ID up until found. Concurrent sends share one lookup, and lookup
// failures degrade to a plain @handle.
func (s *Service) mention(ctx context.Context) string {
	if s.groupHandle == "" {
		return ""
	}

	s.mu.Lock()
	id := s.groupID
	s.mu.Unlock()

	if id == "" && s.groups != nil {
		v, _, _ := s.lookup.Do(s.groupHandle, func() (any, error) {
			return s.lookupGroup(ctx), nil
		})
		id = v.(string)
	}
	if id == "" {
		return "@" + s.groupHandle
	}
	return fmt.Sprintf("<!subteam^%s|@%s>", id, s.groupHandle)
}

// lookupGroup finds the configured group's ID and caches it. It returns
// "" when the group cannot be resolved.
func (s *Service) lookupGroup(ctx context.Context) string {
	groups, err := s.groups.GetUserGroupsContext(ctx)
	if err != nil {
		s.logger.Warn("user group lookup failed, using handle only", "handle", s.groupHandle, "err", err)
		return ""
	}
	for _, g := range groups {
		if g.Handle == s.groupHandle {
			s.mu.Lock()
			s.groupID = g.ID
			s.mu.Unlock()
			return g.ID
		}
	}
	s.logger.Warn("user group not found, using handle only", "handle", s.groupHandle)
	return ""
}
