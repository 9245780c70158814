package email

import (
	"context"
)

// Service is the outbound email channel. Implementations must be safe for
// concurrent use by the outbox worker.
type Service interface {
	Send(ctx context.Context, to string, subject string, body string) error
}
