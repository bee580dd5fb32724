package feedwatch

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// observerJS is evaluated as a function of (containerSelector,
// bindingName, token). It reports every MutationRecord under the feed
// container through the binding; the Go side decides which ones matter.
//
//go:embed feedobserver.js
var observerJS string

// BindingName is the CDP binding the injected observer reports through.
const BindingName = "__feedfilter_binding"

// Default selectors of the host feed.
const (
	DefaultContainerSelector = ".scaffold-layout__main"
	DefaultActivitySelector  = "[data-urn^='urn:li:activity']"
)

// RodPage implements Page on a go-rod page.
type RodPage struct {
	page      *rod.Page
	container string
	activity  string
	logger    *slog.Logger

	bindOnce sync.Once
	bindErr  error
	token    atomic.Uint64
}

// NewRodPage wraps page. Empty selectors take the defaults.
func NewRodPage(page *rod.Page, containerSel, activitySel string, logger *slog.Logger) *RodPage {
	if containerSel == "" {
		containerSel = DefaultContainerSelector
	}
	if activitySel == "" {
		activitySel = DefaultActivitySelector
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RodPage{page: page, container: containerSel, activity: activitySel, logger: logger}
}

// Rod returns the underlying page.
func (p *RodPage) Rod() *rod.Page { return p.page }

func (p *RodPage) Location(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => location.pathname`)
	if err != nil {
		return "", fmt.Errorf("feedwatch: location: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *RodPage) ContainerExists(ctx context.Context) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`(sel) => document.querySelector(sel) !== null`, p.container)
	if err != nil {
		return false, fmt.Errorf("feedwatch: probe container: %w", err)
	}
	return res.Value.Bool(), nil
}

func (p *RodPage) Activities(ctx context.Context) ([]Existing, error) {
	res, err := p.page.Context(ctx).Eval(`(containerSel, activitySel) => {
		const c = document.querySelector(containerSel);
		if (!c) return "[]";
		return JSON.stringify(Array.from(c.querySelectorAll(activitySel), (e) => ({
			urn: e.getAttribute('data-urn'),
			html: e.outerHTML,
		})));
	}`, p.container, p.activity)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: list activities: %w", err)
	}
	var items []Existing
	if err := json.Unmarshal([]byte(res.Value.Str()), &items); err != nil {
		return nil, fmt.Errorf("feedwatch: decode activities: %w", err)
	}
	return items, nil
}

type bindingPayload struct {
	Token   uint64            `json:"token"`
	Records []mutation.Record `json:"records"`
}

// Observe injects the MutationObserver and forwards its records to fn.
// Deliveries from a previous observer are dropped by token.
func (p *RodPage) Observe(ctx context.Context, fn func([]mutation.Record)) (Subscription, error) {
	p.bindOnce.Do(func() {
		p.bindErr = proto.RuntimeAddBinding{Name: BindingName}.Call(p.page)
	})
	if p.bindErr != nil {
		return nil, fmt.Errorf("feedwatch: add binding: %w", p.bindErr)
	}

	token := p.token.Add(1)
	lctx, cancel := context.WithCancel(ctx)
	wait := p.page.Context(lctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		var payload bindingPayload
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			p.logger.Warn("feedwatch: parse binding payload", "error", err)
			return
		}
		if payload.Token != token {
			return
		}
		fn(payload.Records)
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	res, err := p.page.Context(ctx).Eval(observerJS, p.container, BindingName, token)
	if err != nil || !res.Value.Bool() {
		cancel()
		<-done
		if err == nil {
			err = fmt.Errorf("container %q not found", p.container)
		}
		return nil, fmt.Errorf("feedwatch: inject observer: %w", err)
	}
	return &rodSubscription{page: p.page, cancel: cancel, done: done}, nil
}

type rodSubscription struct {
	page   *rod.Page
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close disconnects the page observer and stops event delivery. It
// returns once no further callback can start.
func (s *rodSubscription) Close() error {
	var err error
	s.once.Do(func() {
		_, err = s.page.Eval(`() => {
			if (window.__feedfilter_observer) {
				window.__feedfilter_observer.disconnect();
				window.__feedfilter_observer = undefined;
			}
		}`)
		s.cancel()
		<-s.done
	})
	if err != nil {
		return fmt.Errorf("feedwatch: disconnect observer: %w", err)
	}
	return nil
}

// findByURN returns the element whose data-urn equals urn exactly. The
// lookup spans every [data-urn] element rather than the activity
// selector: an appended item is accepted when its URN merely contains
// the activity marker.
const findByURN = `(urn) => {
	for (const e of document.querySelectorAll('[data-urn]')) {
		if (e.getAttribute('data-urn') === urn) return e;
	}
	return null;
}`

func (p *RodPage) Hide(ctx context.Context, urn string) error {
	return p.act(ctx, "hide", urn, `e.style.display = 'none'`)
}

func (p *RodPage) Remove(ctx context.Context, urn string) error {
	return p.act(ctx, "remove", urn, `e.remove()`)
}

// act runs stmt on the element identified by urn, bound to e.
func (p *RodPage) act(ctx context.Context, name, urn, stmt string) error {
	res, err := p.page.Context(ctx).Eval(`(urn) => {
		const e = (`+findByURN+`)(urn);
		if (!e) return false;
		`+stmt+`;
		return true;
	}`, urn)
	if err != nil {
		return fmt.Errorf("feedwatch: %s %s: %w", name, urn, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("feedwatch: %s %s: %w", name, urn, ErrItemNotFound)
	}
	return nil
}

func (p *RodPage) Viewport(ctx context.Context) (Viewport, error) {
	res, err := p.page.Context(ctx).Eval(`() => JSON.stringify({
		body_height: document.body ? document.body.offsetHeight : 0,
		inner_height: window.innerHeight,
		scroll_y: window.pageYOffset,
	})`)
	if err != nil {
		return Viewport{}, fmt.Errorf("feedwatch: viewport: %w", err)
	}
	var vp Viewport
	if err := json.Unmarshal([]byte(res.Value.Str()), &vp); err != nil {
		return Viewport{}, fmt.Errorf("feedwatch: decode viewport: %w", err)
	}
	return vp, nil
}

func (p *RodPage) DispatchScroll(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => window.dispatchEvent(new Event('scroll'))`)
	if err != nil {
		return fmt.Errorf("feedwatch: dispatch scroll: %w", err)
	}
	return nil
}
