// Package sink defines where committed post combinations go. The scheduler
// core plans and records; a Sink turns the plan into an actual outbound post.
package sink

import (
	"context"

	"groupcast/internal/planner"
)

// Sink accepts a finalized combination after the coordinator has recorded it.
type Sink interface {
	Deliver(ctx context.Context, c planner.Combination) error
	Close() error
}

// Nop discards every combination. Used for dry runs.
type Nop struct{}

func (Nop) Deliver(context.Context, planner.Combination) error { return nil }
func (Nop) Close() error                                       { return nil }
