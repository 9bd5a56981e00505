package domain

import "context"

// DeliveryClient performs a single delivery of pre-formatted text to the
// destination channel. Implementations must be safe for concurrent use.
type DeliveryClient interface {
	Deliver(ctx context.Context, text string) DeliveryOutcome
}
