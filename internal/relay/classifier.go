package relay

import (
	"time"

	"slackrelay/internal/domain"
)

// Verdict is the retry classification of a failed delivery.
type Verdict int

const (
	NonRetryable Verdict = iota
	Retryable
	RateLimited
)

func (v Verdict) String() string {
	switch v {
	case Retryable:
		return "retryable"
	case RateLimited:
		return "rate_limited"
	default:
		return "non_retryable"
	}
}

// verdicts lists every error kind that may be retried. Anything absent is
// NonRetryable.
var verdicts = map[domain.ErrorKind]Verdict{
	domain.ErrorKindServiceUnavailable: Retryable,
	domain.ErrorKindRequestTimeout:     Retryable,
	domain.ErrorKindInternal:           Retryable,
	domain.ErrorKindRateLimited:        RateLimited,
}

// Classify maps an upstream error kind to a verdict. A rate limit without a
// retry-after hint is treated as plain Retryable.
func Classify(kind domain.ErrorKind, retryAfter time.Duration) Verdict {
	v, ok := verdicts[kind]
	if !ok {
		return NonRetryable
	}
	if v == RateLimited && retryAfter <= 0 {
		return Retryable
	}
	return v
}
