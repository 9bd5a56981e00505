package domain

import "time"

// ErrorKind is an upstream error code, e.g. "channel_not_found".
type ErrorKind string

const (
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrorKindRequestTimeout     ErrorKind = "request_timeout"
	ErrorKindInternal           ErrorKind = "internal_error"
	ErrorKindRateLimited        ErrorKind = "rate_limited"

	ErrorKindChannelNotFound ErrorKind = "channel_not_found"
	ErrorKindNotInChannel    ErrorKind = "not_in_channel"
	ErrorKindInvalidAuth     ErrorKind = "invalid_auth"
	ErrorKindTokenRevoked    ErrorKind = "token_revoked"
	ErrorKindMissingScope    ErrorKind = "missing_scope"
	ErrorKindAccountInactive ErrorKind = "account_inactive"
	ErrorKindNoPermission    ErrorKind = "no_permission"

	// ErrorKindCancelled is reported when a relay is abandoned because its
	// context was cancelled. It never comes from the upstream.
	ErrorKindCancelled ErrorKind = "cancelled"
	// ErrorKindInvalidMessage is reported for messages with no text; they
	// never reach the upstream.
	ErrorKindInvalidMessage ErrorKind = "invalid_message"
	// ErrorKindUnknown is used when a transport failure carries no code.
	ErrorKindUnknown ErrorKind = "unknown_error"
)

// DeliveryOutcome is the result of one delivery attempt.
type DeliveryOutcome struct {
	OK         bool
	ErrorKind  ErrorKind
	RetryAfter time.Duration // upstream hint, rate_limited only
}

// Delivered is the successful outcome.
func Delivered() DeliveryOutcome { return DeliveryOutcome{OK: true} }

// Failure builds a failed outcome. retryAfter may be zero.
func Failure(kind ErrorKind, retryAfter time.Duration) DeliveryOutcome {
	return DeliveryOutcome{ErrorKind: kind, RetryAfter: retryAfter}
}

// RelayResult is the final outcome of a relay, including all retries.
type RelayResult struct {
	Delivered bool
	ErrorKind ErrorKind // empty when delivered
	Attempts  int
}
