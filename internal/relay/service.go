package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"slackrelay/internal/domain"
	"slackrelay/internal/format"
	"slackrelay/internal/metrics"
)

const (
	// DirectMessageLabel is the metrics source label for Slack DMs.
	DirectMessageLabel = "direct_message"
	// DefaultCallbackLabel labels callbacks that do not name their origin.
	DefaultCallbackLabel = "external"
)

// LatencyObserver records end-to-end relay durations.
type LatencyObserver interface {
	ObserveRelay(source string, d time.Duration)
}

// Service is the single entry point both ingestion sources use: format a
// message, then relay it.
type Service struct {
	formatter *format.Formatter
	engine    *Engine
	latency   LatencyObserver
	logger    *slog.Logger
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Formatter *format.Formatter
	Engine    *Engine
	Latency   LatencyObserver // optional
	Logger    *slog.Logger
}

// NewService creates a relay service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		formatter: cfg.Formatter,
		engine:    cfg.Engine,
		latency:   cfg.Latency,
		logger:    cfg.Logger,
	}
}

// Relay formats msg and delivers it.
func (s *Service) Relay(ctx context.Context, msg domain.Message) domain.RelayResult {
	label := SourceLabel(msg)
	if strings.TrimSpace(msg.Text) == "" {
		s.logger.Warn("refusing to relay empty message", "source", label)
		s.engine.record(metrics.EventFailed, label, domain.ErrorKindInvalidMessage)
		return domain.RelayResult{ErrorKind: domain.ErrorKindInvalidMessage}
	}

	payload := s.formatter.Format(msg)
	start := time.Now()
	res := s.engine.Relay(ctx, label, payload)
	if s.latency != nil {
		s.latency.ObserveRelay(label, time.Since(start))
	}
	return res
}

// SourceLabel names the origin of msg for metrics and logs: the declared
// source of a callback, or a fixed label for DMs.
func SourceLabel(msg domain.Message) string {
	if msg.Source == domain.SourceDirectMessage {
		return DirectMessageLabel
	}
	if v, ok := msg.Metadata.Get("source"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return DefaultCallbackLabel
}
