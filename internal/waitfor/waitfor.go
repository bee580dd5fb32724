// Package waitfor polls a predicate until it holds or the context ends.
package waitfor

import (
	"context"
	"time"
)

// Options controls the polling schedule.
type Options struct {
	// Interval is the delay before the second check. Default: 50ms.
	Interval time.Duration
	// Multiplier grows the delay after each miss. Values <= 1 keep a
	// fixed interval, which is the default.
	Multiplier float64
	// MaxInterval caps the grown delay. Zero means no cap.
	MaxInterval time.Duration
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 50 * time.Millisecond
	}
}

// Until checks cond immediately, then after every delay, until cond
// returns true. There is no attempt limit: it returns nil once cond holds,
// or ctx.Err() when the context is cancelled first.
func Until(ctx context.Context, opts Options, cond func(context.Context) bool) error {
	opts.defaults()
	delay := opts.Interval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cond(ctx) {
			return nil
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		if opts.Multiplier > 1 {
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if opts.MaxInterval > 0 && delay > opts.MaxInterval {
				delay = opts.MaxInterval
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
