package feedwatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/feedfilter/activity"
	"github.com/hazyhaar/feedfilter/connectivity"
	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
	"github.com/hazyhaar/feedfilter/idgen"
	"github.com/hazyhaar/feedfilter/prefs"
)

func urn(n int) string { return fmt.Sprintf("urn:li:activity:70000000000000000%02d", n) }

func connectionPost(u string) string {
	return `<div class="feed-shared-update-v2" data-urn="` + u + `"><div><div class="feed-shared-actor feed-shared-actor--with-control-menu">Jane Doe • 2nd</div></div><p>hello</p></div>`
}

func promotedPost(u string) string {
	return `<div class="feed-shared-update-v2" data-urn="` + u + `"><div><div class="feed-shared-actor feed-shared-actor--with-control-menu">Acme Corp Promoted</div></div></div>`
}

func unknownItem(u string) string {
	return `<div class="feed-shared-update-v2" data-urn="` + u + `"><div class="feed-shared-header">Trending in your network</div></div>`
}

func appended(u, markup string) mutation.Record {
	return mutation.Record{
		Type:       mutation.ChildList,
		TargetType: mutation.ElementNode,
		Added:      []mutation.Node{{NodeType: mutation.ElementNode, Tag: "div", URN: u, HasURN: true, HTML: markup}},
	}
}

// fakePage is an in-memory Page. Actions are recorded in order.
type fakePage struct {
	mu        sync.Mutex
	container bool
	items     []Existing
	viewport  Viewport
	fn        func([]mutation.Record)
	lastFn    func([]mutation.Record) // survives Close, to simulate late deliveries
	observes  int
	closes    int
	actions   []string
	gone      map[string]bool // URNs Hide and Remove cannot find
	scrolls   atomic.Int32
}

func (p *fakePage) Location(context.Context) (string, error) { return "/feed/", nil }

func (p *fakePage) ContainerExists(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.container, nil
}

func (p *fakePage) setContainer(v bool) {
	p.mu.Lock()
	p.container = v
	p.mu.Unlock()
}

func (p *fakePage) Activities(context.Context) ([]Existing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items), nil
}

type fakeSub struct{ p *fakePage }

func (s fakeSub) Close() error {
	s.p.mu.Lock()
	s.p.fn = nil
	s.p.closes++
	s.p.mu.Unlock()
	return nil
}

func (p *fakePage) Observe(_ context.Context, fn func([]mutation.Record)) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn, p.lastFn = fn, fn
	p.observes++
	return fakeSub{p}, nil
}

func (p *fakePage) deliver(recs ...mutation.Record) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(recs)
	}
}

func (p *fakePage) deliverLate(recs ...mutation.Record) {
	p.mu.Lock()
	fn := p.lastFn
	p.mu.Unlock()
	if fn != nil {
		fn(recs)
	}
}

// replaceDocument drops the live observer without closing it, as a full
// load of the host page does.
func (p *fakePage) replaceDocument() {
	p.mu.Lock()
	p.fn = nil
	p.mu.Unlock()
}

func (p *fakePage) record(action string) {
	p.mu.Lock()
	p.actions = append(p.actions, action)
	p.mu.Unlock()
}

func (p *fakePage) act(action, u string) error {
	if p.gone[u] {
		return ErrItemNotFound
	}
	p.record(action + " " + u)
	return nil
}

func (p *fakePage) Hide(_ context.Context, u string) error { return p.act("hide", u) }
func (p *fakePage) Remove(_ context.Context, u string) error { return p.act("remove", u) }

func (p *fakePage) Viewport(context.Context) (Viewport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport, nil
}

func (p *fakePage) DispatchScroll(context.Context) error {
	p.scrolls.Add(1)
	return nil
}

func (p *fakePage) snapshot() (actions []string, observes, closes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.actions), p.observes, p.closes
}

type staticFilters struct{ set activity.ExclusionSet }

func (f staticFilters) LoadFilters(context.Context) activity.ExclusionSet { return f.set }

type eventLog struct {
	mu     sync.Mutex
	events []mutation.Event
}

func (l *eventLog) sink() Sink {
	return NewCallbackSink(func(_ context.Context, ev mutation.Event) error {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
		return nil
	})
}

func (l *eventLog) kinds() []mutation.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]mutation.Kind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(page Page, excluded activity.ExclusionSet, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	if cfg.IDs == nil {
		cfg.IDs = idgen.Sequence("id_")
	}
	cfg.PollInterval = time.Millisecond
	if cfg.ScrollInterval == 0 {
		cfg.ScrollInterval = time.Hour
	}
	return New(page, staticFilters{excluded}, cfg)
}

func activate(t *testing.T, c *Controller) {
	t.Helper()
	c.Activate(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestController_SweepRemovesExcluded(t *testing.T) {
	page := &fakePage{container: true}
	for i := 1; i <= 5; i++ {
		markup := connectionPost(urn(i))
		if i == 3 {
			markup = promotedPost(urn(i))
		}
		page.items = append(page.items, Existing{URN: urn(i), HTML: markup})
	}
	var events eventLog
	c := newController(page, activity.NewExclusionSet(activity.PromotedPost), Config{Sink: events.sink()})

	activate(t, c)
	defer c.Deactivate()

	actions, observes, _ := page.snapshot()
	if want := []string{"remove " + urn(3)}; !slices.Equal(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
	if observes != 1 {
		t.Fatalf("observes = %d, want 1", observes)
	}
	if c.State() != Active {
		t.Fatalf("state = %s", c.State())
	}
	if got := events.kinds(); !slices.Equal(got, []mutation.Kind{mutation.KindRemoved, mutation.KindActivated}) {
		t.Fatalf("events = %v", got)
	}
}

func TestController_StreamedRecords(t *testing.T) {
	page := &fakePage{container: true}
	var events eventLog
	c := newController(page, activity.NewExclusionSet(activity.PromotedPost), Config{Sink: events.sink()})
	activate(t, c)
	defer c.Deactivate()

	batched := appended(urn(1), promotedPost(urn(1)))
	batched.Added = append(batched.Added, batched.Added[0])
	textNode := mutation.Record{Type: mutation.ChildList, TargetType: mutation.ElementNode,
		Added: []mutation.Node{{NodeType: mutation.TextNode}}}
	attr := mutation.Record{Type: mutation.Attributes, TargetType: mutation.ElementNode, Attribute: "class"}
	noURN := appended("", promotedPost(urn(2)))
	noURN.Added[0].HasURN = false

	page.deliver(batched, textNode, attr, noURN)
	page.deliver(appended(urn(4), connectionPost(urn(4))))
	page.deliver(appended(urn(5), promotedPost(urn(5))))
	page.deliver(appended(urn(6), unknownItem(urn(6))))

	actions, _, _ := page.snapshot()
	if want := []string{"hide " + urn(5)}; !slices.Equal(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
	want := []mutation.Kind{mutation.KindActivated, mutation.KindHidden, mutation.KindUnknown}
	if got := events.kinds(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	events.mu.Lock()
	unknown := events.events[2]
	events.mu.Unlock()
	if unknown.URN != urn(6) || unknown.HTML == "" || unknown.ActivationID == "" {
		t.Fatalf("unknown event = %+v", unknown)
	}
}

func TestController_MissingItemIsNotReported(t *testing.T) {
	page := &fakePage{container: true, gone: map[string]bool{urn(1): true}}
	var events eventLog
	c := newController(page, activity.NewExclusionSet(activity.PromotedPost), Config{Sink: events.sink()})
	activate(t, c)
	defer c.Deactivate()

	page.deliver(appended(urn(1), promotedPost(urn(1))), appended(urn(2), promotedPost(urn(2))))

	if actions, _, _ := page.snapshot(); !slices.Equal(actions, []string{"hide " + urn(2)}) {
		t.Fatalf("actions = %v", actions)
	}
	want := []mutation.Kind{mutation.KindActivated, mutation.KindHidden}
	if got := events.kinds(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestController_NothingAfterDeactivate(t *testing.T) {
	page := &fakePage{container: true}
	var logs bytes.Buffer
	c := newController(page, activity.NewExclusionSet(activity.PromotedPost), Config{
		Logger: slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	activate(t, c)

	c.Deactivate()
	c.Deactivate() // idempotent
	logged := logs.Len()

	page.deliverLate(appended(urn(1), promotedPost(urn(1))), appended(urn(2), unknownItem(urn(2))))

	actions, _, closes := page.snapshot()
	if len(actions) != 0 {
		t.Fatalf("actions after deactivate: %v", actions)
	}
	if closes != 1 {
		t.Fatalf("subscription closed %d times, want 1", closes)
	}
	if logs.Len() != logged {
		t.Fatalf("log written after deactivate: %s", logs.Bytes()[logged:])
	}
	if c.State() != Inactive || c.ActivationID() != "" {
		t.Fatalf("state = %s id = %q", c.State(), c.ActivationID())
	}
}

func TestController_DeactivateCancelsContainerWait(t *testing.T) {
	page := &fakePage{}
	c := newController(page, activity.NewExclusionSet(), Config{})
	c.Activate(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); err == nil {
		t.Fatal("Wait returned before the container appeared")
	}

	done := make(chan struct{})
	go func() { c.Deactivate(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Deactivate did not cancel the wait")
	}
	if _, observes, _ := page.snapshot(); observes != 0 {
		t.Fatalf("observed %d times without a container", observes)
	}
}

func TestController_ContainerAppearsLater(t *testing.T) {
	page := &fakePage{items: []Existing{{URN: urn(1), HTML: promotedPost(urn(1))}}}
	c := newController(page, activity.NewExclusionSet(activity.PromotedPost), Config{})
	c.Activate(context.Background())
	defer c.Deactivate()

	time.Sleep(10 * time.Millisecond)
	page.setContainer(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if actions, _, _ := page.snapshot(); !slices.Equal(actions, []string{"remove " + urn(1)}) {
		t.Fatalf("actions = %v", actions)
	}
}

func TestController_Navigate(t *testing.T) {
	page := &fakePage{container: true}
	c := newController(page, activity.NewExclusionSet(), Config{})
	ctx := context.Background()

	c.Navigate(ctx, "/feed/")
	c.Wait(ctx)
	first := c.ActivationID()
	c.Navigate(ctx, "https://www.linkedin.com/feed/")
	c.Wait(ctx)
	if c.ActivationID() != first {
		t.Fatal("re-navigating within the feed started a new activation")
	}
	if _, observes, _ := page.snapshot(); observes != 1 {
		t.Fatalf("observes = %d, want 1", observes)
	}

	c.Navigate(ctx, "/mynetwork/")
	if c.State() != Inactive {
		t.Fatalf("state after leaving = %s", c.State())
	}
	c.Navigate(ctx, "/jobs/") // inactive and off the feed: nothing to do
	if _, _, closes := page.snapshot(); closes != 1 {
		t.Fatalf("closes = %d, want 1", closes)
	}

	c.Navigate(ctx, "/feed/")
	c.Wait(ctx)
	defer c.Deactivate()
	if c.State() != Active || c.ActivationID() == first {
		t.Fatalf("expected a fresh activation, state=%s id=%s", c.State(), c.ActivationID())
	}
}

func TestController_RearmAfterFullLoad(t *testing.T) {
	page := &fakePage{container: true}
	c := newController(page, activity.NewExclusionSet(activity.PromotedPost), Config{})
	ctx := context.Background()

	c.Navigate(ctx, "https://www.linkedin.com/feed/")
	c.Wait(ctx)
	first := c.ActivationID()

	page.replaceDocument()
	c.Rearm(ctx, "https://www.linkedin.com/feed/")
	c.Wait(ctx)
	defer c.Deactivate()

	if c.State() != Active || c.ActivationID() == first {
		t.Fatalf("expected a fresh activation, state=%s id=%s", c.State(), c.ActivationID())
	}
	page.deliver(appended(urn(1), promotedPost(urn(1))))

	actions, observes, closes := page.snapshot()
	if observes != 2 || closes != 1 {
		t.Fatalf("observes = %d closes = %d, want 2 and 1", observes, closes)
	}
	if want := []string{"hide " + urn(1)}; !slices.Equal(actions, want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
}

func TestController_RearmOffFeed(t *testing.T) {
	page := &fakePage{container: true}
	c := newController(page, activity.NewExclusionSet(), Config{})
	ctx := context.Background()

	activate(t, c)
	c.Rearm(ctx, "https://www.linkedin.com/jobs/")
	if c.State() != Inactive {
		t.Fatalf("state = %s, want inactive", c.State())
	}
	c.Rearm(ctx, "https://www.linkedin.com/jobs/")
	if _, observes, closes := page.snapshot(); observes != 1 || closes != 1 {
		t.Fatalf("observes = %d closes = %d", observes, closes)
	}
}

func TestController_ScrollStimulus(t *testing.T) {
	tests := []struct {
		name     string
		viewport Viewport
		want     bool
	}{
		{"near bottom", Viewport{BodyHeight: 3000, InnerHeight: 900, ScrollY: 1200}, true},
		{"exactly threshold", Viewport{BodyHeight: 2875, InnerHeight: 900, ScrollY: 1000}, true},
		{"far from bottom", Viewport{BodyHeight: 10000, InnerHeight: 900, ScrollY: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{container: true, viewport: tt.viewport}
			c := newController(page, activity.NewExclusionSet(), Config{ScrollInterval: 2 * time.Millisecond})
			activate(t, c)
			time.Sleep(30 * time.Millisecond)
			c.Deactivate()

			after := page.scrolls.Load()
			if got := after > 0; got != tt.want {
				t.Fatalf("scrolled = %v (%d), want %v", got, after, tt.want)
			}
			time.Sleep(10 * time.Millisecond)
			if page.scrolls.Load() != after {
				t.Fatal("scroll stimulus kept running after deactivate")
			}
		})
	}
}

func TestController_StorageFailureMeansNoFilters(t *testing.T) {
	page := &fakePage{container: true, items: []Existing{{URN: urn(1), HTML: promotedPost(urn(1))}}}
	// A router with no preference store: every load fails.
	client := prefs.NewClient(connectivity.New(connectivity.WithLogger(quietLogger())), quietLogger())
	c := New(page, client, Config{Logger: quietLogger(), PollInterval: time.Millisecond, ScrollInterval: time.Hour})

	activate(t, c)
	defer c.Deactivate()
	if actions, _, _ := page.snapshot(); len(actions) != 0 {
		t.Fatalf("actions = %v, want none", actions)
	}
}

func TestController_Reload(t *testing.T) {
	page := &fakePage{container: true}
	c := newController(page, activity.NewExclusionSet(), Config{})
	activate(t, c)

	var reloadedWhile State
	err := c.Reload(context.Background(), func(context.Context) error {
		reloadedWhile = c.State()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if reloadedWhile != Inactive {
		t.Fatalf("reload ran while %s", reloadedWhile)
	}
}

type navRecorder struct {
	mu   sync.Mutex
	locs []string
}

func (n *navRecorder) Navigate(_ context.Context, loc string) {
	n.mu.Lock()
	n.locs = append(n.locs, "navigate "+loc)
	n.mu.Unlock()
}

func (n *navRecorder) Rearm(_ context.Context, loc string) {
	n.mu.Lock()
	n.locs = append(n.locs, "rearm "+loc)
	n.mu.Unlock()
}

func TestFollowNavigation_InOrder(t *testing.T) {
	events := make(chan Navigation, 4)
	events <- Navigation{URL: "https://www.linkedin.com/feed/"}
	events <- Navigation{URL: "https://www.linkedin.com/in/someone/"}
	events <- Navigation{URL: "https://www.linkedin.com/feed/", NewDocument: true}
	events <- Navigation{URL: "https://www.linkedin.com/feed/"}
	close(events)

	var rec navRecorder
	FollowNavigation(context.Background(), events, &rec)
	want := []string{
		"navigate https://www.linkedin.com/feed/",
		"navigate https://www.linkedin.com/in/someone/",
		"rearm https://www.linkedin.com/feed/",
		"navigate https://www.linkedin.com/feed/",
	}
	if !slices.Equal(rec.locs, want) {
		t.Fatalf("locations = %v, want %v", rec.locs, want)
	}
}
