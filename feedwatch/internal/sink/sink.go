// Package sink defines output backends for feed pipeline events.
package sink

import (
	"context"

	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// Sink receives every event the pipeline emits.
type Sink interface {
	Send(ctx context.Context, ev mutation.Event) error
	Close() error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Send(context.Context, mutation.Event) error { return nil }
func (Discard) Close() error { return nil }
