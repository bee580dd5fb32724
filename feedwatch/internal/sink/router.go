package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// Router fans events out to every sink. A failing sink does not stop the
// others; errors are logged and joined.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Send(ctx context.Context, ev mutation.Event) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Send(ctx, ev); err != nil {
			r.logger.WarnContext(ctx, "sink: send failed", "kind", ev.Kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
