package feedwatch

import (
	"context"
	"errors"

	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// ErrItemNotFound is returned by Hide and Remove when no element carries
// the URN.
var ErrItemNotFound = errors.New("item not found")

// Page is the host page as the pipeline sees it. RodPage is the browser
// implementation; tests use an in-memory one.
type Page interface {
	// Location returns the current path, e.g. "/feed/".
	Location(ctx context.Context) (string, error)
	// ContainerExists reports whether the feed container is in the tree.
	ContainerExists(ctx context.Context) (bool, error)
	// Activities returns the activity items already present.
	Activities(ctx context.Context) ([]Existing, error)
	// Observe subscribes to mutation records under the feed container.
	// fn may be called from any goroutine until the subscription closes.
	Observe(ctx context.Context, fn func([]mutation.Record)) (Subscription, error)
	// Hide suppresses display of an item; the node stays in the tree.
	// Hide and Remove fail with ErrItemNotFound when no element matches.
	Hide(ctx context.Context, urn string) error
	// Remove detaches an item from the tree.
	Remove(ctx context.Context, urn string) error
	Viewport(ctx context.Context) (Viewport, error)
	// DispatchScroll fires a synthetic scroll event on the window.
	DispatchScroll(ctx context.Context) error
}

// Subscription is an open mutation subscription.
type Subscription interface {
	Close() error
}

// Existing is an activity found by the initial sweep.
type Existing struct {
	URN  string `json:"urn"`
	HTML string `json:"html"`
}

// Viewport holds the geometry the scroll stimulus looks at, in CSS pixels.
type Viewport struct {
	BodyHeight  float64 `json:"body_height"`
	InnerHeight float64 `json:"inner_height"`
	ScrollY     float64 `json:"scroll_y"`
}

// Remaining is the distance between the bottom of the viewport and the
// bottom of the document.
func (v Viewport) Remaining() float64 {
	return v.BodyHeight - (v.InnerHeight + v.ScrollY)
}
