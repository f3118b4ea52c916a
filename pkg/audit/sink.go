package audit

import (
	"context"
)

// Sink is an append-only destination for audit events. Implementations must
// never mutate or delete recorded events.
type Sink interface {
	// Record durably appends an event
	Record(ctx context.Context, event Event) error
}
