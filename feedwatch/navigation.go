package feedwatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Navigation is one location change of the top frame.
type Navigation struct {
	URL string
	// NewDocument marks a full load: the previous document, and anything
	// injected into it, is gone.
	NewDocument bool
}

// Navigator reacts to the host page location changing.
type Navigator interface {
	Navigate(ctx context.Context, location string)
	Rearm(ctx context.Context, location string)
}

// FollowNavigation feeds every navigation received on events to nav, one
// at a time and in arrival order, until ctx ends or events closes. Full
// loads go to Rearm, history-API moves to Navigate.
func FollowNavigation(ctx context.Context, events <-chan Navigation, nav Navigator) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.NewDocument {
				nav.Rearm(ctx, ev.URL)
			} else {
				nav.Navigate(ctx, ev.URL)
			}
		}
	}
}

// WatchNavigation turns the page's full loads into Rearm calls and its
// history-API navigations into Navigate calls on nav, starting with the
// current location. It blocks until ctx ends.
func WatchNavigation(ctx context.Context, page *rod.Page, nav Navigator, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return fmt.Errorf("feedwatch: enable page events: %w", err)
	}

	events := make(chan Navigation, 16)
	push := func(ev Navigation) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			logger.Debug("feedwatch: navigated", "url", e.Frame.URL)
			push(Navigation{URL: e.Frame.URL, NewDocument: true})
		},
		func(e *proto.PageNavigatedWithinDocument) {
			if e.FrameID != page.FrameID {
				return
			}
			logger.Debug("feedwatch: navigated within document", "url", e.URL)
			push(Navigation{URL: e.URL})
		},
	)
	go wait()

	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("feedwatch: page info: %w", err)
	}
	push(Navigation{URL: info.URL})

	FollowNavigation(ctx, events, nav)
	return nil
}
