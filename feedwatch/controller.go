// Package feedwatch drives the feed filtering pipeline on a live page.
//
// The Controller is a two-state machine. While active it owns one
// mutation subscription, one scroll-stimulus ticker and the cancel
// function of any in-flight wait; Deactivate releases all three together
// and waits for in-flight callbacks, so nothing an activation started can
// act on the page after it returns.
package feedwatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/hazyhaar/feedfilter/activity"
	"github.com/hazyhaar/feedfilter/feedwatch/internal/sink"
	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
	"github.com/hazyhaar/feedfilter/idgen"
	"github.com/hazyhaar/feedfilter/internal/waitfor"
	"github.com/hazyhaar/feedfilter/kit"
)

// State is the pipeline state.
type State string

const (
	Inactive State = "inactive"
	Active   State = "active"
)

// Filters supplies the exclusion set at activation. Implementations must
// not fail: unavailable storage yields the empty set.
type Filters interface {
	LoadFilters(ctx context.Context) activity.ExclusionSet
}

// Config configures a Controller. Zero values take the defaults below.
type Config struct {
	FeedPath        string        // default "/feed/"
	PollInterval    time.Duration // container wait, default 50ms
	ScrollInterval  time.Duration // scroll stimulus, default 100ms
	ScrollThreshold float64       // px from the bottom, default 975
	Sink            sink.Sink
	IDs             idgen.Generator
	Logger          *slog.Logger
}

func (c *Config) defaults() {
	if c.FeedPath == "" {
		c.FeedPath = "/feed/"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.ScrollInterval <= 0 {
		c.ScrollInterval = 100 * time.Millisecond
	}
	if c.ScrollThreshold <= 0 {
		c.ScrollThreshold = 975
	}
	if c.Sink == nil {
		c.Sink = sink.Discard{}
	}
	if c.IDs == nil {
		c.IDs = idgen.Default
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller owns the pipeline state for one page.
type Controller struct {
	cfg     Config
	page    Page
	filters Filters
	logger  *slog.Logger

	navMu sync.Mutex // serializes Navigate, Activate, Deactivate
	mu    sync.Mutex // guards act
	act   *activation
}

// activation is everything one active period owns.
type activation struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	settled  chan struct{} // closed when setup finished or gave up
	excluded activity.ExclusionSet

	mu     sync.Mutex
	closed bool
	sub    Subscription
	ticker *time.Ticker
	wg     sync.WaitGroup // in-flight callbacks and the ticker loop
}

// enter registers an in-flight callback. It fails once teardown started.
func (a *activation) enter() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.wg.Add(1)
	return true
}

// New creates an inactive Controller.
func New(page Page, filters Filters, cfg Config) *Controller {
	cfg.defaults()
	return &Controller{
		cfg:     cfg,
		page:    page,
		filters: filters,
		logger:  cfg.Logger,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.act == nil {
		return Inactive
	}
	return Active
}

// ActivationID returns the id of the current activation, or "".
func (c *Controller) ActivationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.act == nil {
		return ""
	}
	return c.act.id
}

// Navigate reacts to the host page moving to location, a path or a full
// URL, inside the same document. The feed path activates; anything else
// deactivates.
func (c *Controller) Navigate(ctx context.Context, location string) {
	c.navMu.Lock()
	defer c.navMu.Unlock()
	c.navigateLocked(ctx, location)
}

// Rearm reacts to a full document load at location. The previous
// document took the page observer with it, so a running activation is
// torn down before location is handled like Navigate.
func (c *Controller) Rearm(ctx context.Context, location string) {
	c.navMu.Lock()
	defer c.navMu.Unlock()
	c.deactivateLocked()
	c.navigateLocked(ctx, location)
}

func (c *Controller) navigateLocked(ctx context.Context, location string) {
	path := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		path = u.Path
	}
	if path == c.cfg.FeedPath {
		c.activateLocked(ctx)
		return
	}
	c.logger.DebugContext(ctx, "feedwatch: left the feed", "path", path)
	c.deactivateLocked()
}

// Activate starts an activation unless one is running. Setup continues
// in the background under ctx; use Wait to block until it settles.
func (c *Controller) Activate(ctx context.Context) {
	c.navMu.Lock()
	defer c.navMu.Unlock()
	c.activateLocked(ctx)
}

// Deactivate tears down the current activation. It is idempotent.
func (c *Controller) Deactivate() {
	c.navMu.Lock()
	defer c.navMu.Unlock()
	c.deactivateLocked()
}

// Wait blocks until the current activation finished its setup, or ctx
// ends. It returns immediately when inactive.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	a := c.act
	c.mu.Unlock()
	if a == nil {
		return nil
	}
	select {
	case <-a.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload deactivates, then reloads the host page. The full load that
// follows re-arms the pipeline with freshly loaded filters.
func (c *Controller) Reload(ctx context.Context, reload func(context.Context) error) error {
	c.Deactivate()
	if reload == nil {
		return nil
	}
	if err := reload(ctx); err != nil {
		return fmt.Errorf("feedwatch: reload: %w", err)
	}
	return nil
}

func (c *Controller) activateLocked(ctx context.Context) {
	c.mu.Lock()
	if c.act != nil {
		c.mu.Unlock()
		return
	}
	id := c.cfg.IDs()
	actx, cancel := context.WithCancel(kit.WithActivationID(ctx, id))
	a := &activation{
		id:      id,
		ctx:     actx,
		cancel:  cancel,
		settled: make(chan struct{}),
	}
	c.act = a
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "feedwatch: activating", "activation_id", id)
	go c.run(a)
}

func (c *Controller) deactivateLocked() {
	c.mu.Lock()
	a := c.act
	c.act = nil
	c.mu.Unlock()
	if a == nil {
		return
	}

	a.cancel()
	<-a.settled

	a.mu.Lock()
	a.closed = true
	sub, ticker := a.sub, a.ticker
	a.sub, a.ticker = nil, nil
	a.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			c.logger.Warn("feedwatch: close subscription", "activation_id", a.id, "error", err)
		}
	}
	if ticker != nil {
		ticker.Stop()
	}
	a.wg.Wait()

	c.emit(context.WithoutCancel(a.ctx), a, mutation.Event{Kind: mutation.KindDeactivated})
	c.logger.Info("feedwatch: deactivated", "activation_id", a.id)
}

// run performs activation setup: load filters, wait for the container,
// subscribe, sweep, start the scroll stimulus.
func (c *Controller) run(a *activation) {
	defer close(a.settled)
	ctx := a.ctx

	a.excluded = c.filters.LoadFilters(ctx)

	err := waitfor.Until(ctx, waitfor.Options{Interval: c.cfg.PollInterval}, func(ctx context.Context) bool {
		ok, err := c.page.ContainerExists(ctx)
		if err != nil {
			c.logger.DebugContext(ctx, "feedwatch: container probe failed", "error", err)
		}
		return ok
	})
	if err != nil {
		return
	}

	// Subscribe before the sweep so items inserted in between are seen.
	sub, err := c.page.Observe(ctx, func(recs []mutation.Record) { c.handleRecords(a, recs) })
	if err != nil {
		if ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "feedwatch: observe failed", "error", err)
		}
		return
	}
	a.mu.Lock()
	a.sub = sub
	a.mu.Unlock()

	c.sweep(a)
	if ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(c.cfg.ScrollInterval)
	a.mu.Lock()
	a.ticker = ticker
	a.wg.Add(1)
	a.mu.Unlock()
	go c.scrollLoop(a, ticker)

	c.emit(ctx, a, mutation.Event{Kind: mutation.KindActivated, Excluded: a.excluded.Strings()})
	c.logger.InfoContext(ctx, "feedwatch: active",
		"activation_id", a.id, "excluded", a.excluded.Strings())
}

// sweep classifies the items present at activation and removes the
// excluded ones.
func (c *Controller) sweep(a *activation) {
	if !a.enter() {
		return
	}
	defer a.wg.Done()

	items, err := c.page.Activities(a.ctx)
	if err != nil {
		if a.ctx.Err() == nil {
			c.logger.WarnContext(a.ctx, "feedwatch: initial sweep failed", "error", err)
		}
		return
	}
	for _, it := range items {
		if a.ctx.Err() != nil {
			return
		}
		c.process(a, it.URN, it.HTML, mutation.KindRemoved)
	}
}

// handleRecords processes one delivery of mutation records.
func (c *Controller) handleRecords(a *activation, recs []mutation.Record) {
	if !a.enter() {
		return
	}
	defer a.wg.Done()

	for _, r := range recs {
		if a.ctx.Err() != nil {
			return
		}
		n, ok := r.ActivityAppend()
		if !ok {
			continue
		}
		c.process(a, n.URN, n.HTML, mutation.KindHidden)
	}
}

// process classifies one item and applies the action: remove or hide
// when excluded, journal when unknown, nothing otherwise.
func (c *Controller) process(a *activation, urn, markup string, action mutation.Kind) {
	ctx := a.ctx
	frag, err := activity.ParseFragment(markup)
	if err != nil {
		c.logger.WarnContext(ctx, "feedwatch: unparsable item", "urn", urn, "error", err)
		return
	}
	cat := activity.Classify(frag)

	switch {
	case cat == activity.Unknown:
		c.logger.WarnContext(ctx, "feedwatch: unknown activity", "urn", urn, "html", markup)
		c.emit(ctx, a, mutation.Event{Kind: mutation.KindUnknown, URN: urn, Category: string(cat), HTML: markup})

	case a.excluded.Contains(cat):
		if action == mutation.KindRemoved {
			err = c.page.Remove(ctx, urn)
		} else {
			err = c.page.Hide(ctx, urn)
		}
		if err != nil {
			if ctx.Err() == nil {
				c.logger.WarnContext(ctx, "feedwatch: action failed", "action", action, "urn", urn, "error", err)
			}
			return
		}
		c.logger.DebugContext(ctx, "feedwatch: filtered", "action", action, "urn", urn, "category", cat)
		c.emit(ctx, a, mutation.Event{Kind: action, URN: urn, Category: string(cat)})

	default:
		c.logger.DebugContext(ctx, "feedwatch: kept", "urn", urn, "category", cat)
	}
}

// scrollLoop nudges the host's lazy loader: near the bottom of the page
// it dispatches a synthetic scroll so the next page of items loads even
// after hidden items shrank the document.
func (c *Controller) scrollLoop(a *activation, ticker *time.Ticker) {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			vp, err := c.page.Viewport(a.ctx)
			if err != nil {
				continue
			}
			if vp.Remaining() > c.cfg.ScrollThreshold {
				continue
			}
			if err := c.page.DispatchScroll(a.ctx); err != nil && a.ctx.Err() == nil {
				c.logger.DebugContext(a.ctx, "feedwatch: scroll stimulus failed", "error", err)
			}
		}
	}
}

func (c *Controller) emit(ctx context.Context, a *activation, ev mutation.Event) {
	ev.ID = c.cfg.IDs()
	ev.ActivationID = a.id
	ev.Timestamp = time.Now().UnixMilli()
	if err := c.cfg.Sink.Send(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "feedwatch: sink failed", "kind", ev.Kind, "error", err)
	}
}
