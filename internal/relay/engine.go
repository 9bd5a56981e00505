// Package relay drives delivery of formatted messages to the destination
// channel, retrying transient failures with exponential backoff.
package relay

import (
	"context"
	"log/slog"
	"math"
	"time"

	"slackrelay/internal/domain"
	"slackrelay/internal/metrics"
	"slackrelay/internal/tracing"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Recorder observes relay lifecycle events.
type Recorder interface {
	Record(event metrics.Event, source string, kind domain.ErrorKind)
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries int           // additional attempts after the first
	BaseDelay  time.Duration // wait before the first retry
}

// DefaultPolicy returns 3 retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Delay returns the wait before retry number attempt+1. A rate limit hint
// overrides the exponential schedule.
func (p Policy) Delay(attempt int, verdict Verdict, retryAfter time.Duration) time.Duration {
	if verdict == RateLimited && retryAfter > 0 {
		return retryAfter
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Client   domain.DeliveryClient
	Recorder Recorder
	Policy   Policy
	Sleep    SleepFunc       // defaults to a timer-based wait
	Tracer   *tracing.Tracer // defaults to the global tracer provider
	Logger   *slog.Logger
}

// Engine relays payloads through a DeliveryClient. It keeps no per-relay
// state, so Relay may be called concurrently.
type Engine struct {
	client   domain.DeliveryClient
	recorder Recorder
	policy   Policy
	sleep    SleepFunc
	tracer   *tracing.Tracer
	logger   *slog.Logger
}

// NewEngine creates a retry engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracing.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy.MaxRetries < 0 {
		cfg.Policy.MaxRetries = 0
	}
	return &Engine{
		client:   cfg.Client,
		recorder: cfg.Recorder,
		policy:   cfg.Policy,
		sleep:    cfg.Sleep,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}
}

// Relay delivers payload, retrying per the policy. It always returns a
// terminal result and records exactly one terminal event.
func (e *Engine) Relay(ctx context.Context, source, payload string) domain.RelayResult {
	ctx, span := e.tracer.StartRelay(ctx, source, len(payload))
	res := e.run(ctx, source, payload)
	tracing.EndRelay(span, res.Delivered, res.Attempts, string(res.ErrorKind))

	if res.Delivered {
		e.record(metrics.EventRelayed, source, "")
		e.logger.Info("message relayed", "source", source, "attempts", res.Attempts)
	} else {
		e.record(metrics.EventFailed, source, res.ErrorKind)
		e.logger.Error("relay failed",
			"source", source,
			"error_kind", res.ErrorKind,
			"attempts", res.Attempts,
		)
	}
	return res
}

// run is the Attempting/Waiting loop; it returns on Succeeded or FailedFinal.
func (e *Engine) run(ctx context.Context, source, payload string) domain.RelayResult {
	for attempt := 0; ; attempt++ {
		outcome := e.deliver(ctx, attempt, payload)
		if outcome.OK {
			return domain.RelayResult{Delivered: true, Attempts: attempt + 1}
		}
		if ctx.Err() != nil {
			return failed(domain.ErrorKindCancelled, attempt+1)
		}

		verdict := Classify(outcome.ErrorKind, outcome.RetryAfter)
		if verdict == NonRetryable || attempt >= e.policy.MaxRetries {
			return failed(outcome.ErrorKind, attempt+1)
		}

		delay := e.policy.Delay(attempt, verdict, outcome.RetryAfter)
		e.logger.Warn("delivery failed, will retry",
			"source", source,
			"error_kind", outcome.ErrorKind,
			"verdict", verdict.String(),
			"attempt", attempt+1,
			"backoff", delay,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return failed(domain.ErrorKindCancelled, attempt+1)
		}
		e.record(metrics.EventRetried, source, outcome.ErrorKind)
	}
}

func (e *Engine) deliver(ctx context.Context, attempt int, payload string) domain.DeliveryOutcome {
	ctx, span := e.tracer.StartAttempt(ctx, attempt+1)
	outcome := e.client.Deliver(ctx, payload)
	if outcome.OK {
		tracing.EndAttempt(span, "", "")
	} else {
		verdict := Classify(outcome.ErrorKind, outcome.RetryAfter)
		tracing.EndAttempt(span, string(outcome.ErrorKind), verdict.String())
	}
	return outcome
}

func (e *Engine) record(event metrics.Event, source string, kind domain.ErrorKind) {
	if e.recorder != nil {
		e.recorder.Record(event, source, kind)
	}
}

func failed(kind domain.ErrorKind, attempts int) domain.RelayResult {
	if kind == "" {
		kind = domain.ErrorKindUnknown
	}
	return domain.RelayResult{ErrorKind: kind, Attempts: attempts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
