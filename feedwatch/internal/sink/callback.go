package sink

import (
	"context"

	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// EventFunc is called for each event, in-process.
type EventFunc func(ctx context.Context, ev mutation.Event) error

// Callback delivers events through a Go function call.
type Callback struct {
	fn    EventFunc
	kinds map[mutation.Kind]bool
}

// NewCallback creates a Callback sink. When kinds is non-empty only those
// kinds are delivered.
func NewCallback(fn EventFunc, kinds ...mutation.Kind) *Callback {
	c := &Callback{fn: fn}
	if len(kinds) > 0 {
		c.kinds = make(map[mutation.Kind]bool, len(kinds))
		for _, k := range kinds {
			c.kinds[k] = true
		}
	}
	return c
}

func (c *Callback) Send(ctx context.Context, ev mutation.Event) error {
	if c.fn == nil || (c.kinds != nil && !c.kinds[ev.Kind]) {
		return nil
	}
	return c.fn(ctx, ev)
}

func (c *Callback) Close() error { return nil }
