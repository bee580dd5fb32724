// Package feedfilter hides unwanted activity categories from a LinkedIn
// feed running in Chrome.
//
// A Filter owns the browser tab, the preference store and the feed
// controller. The controller classifies every activity the feed renders
// and removes or hides the ones whose category the user excluded; the
// preference panel (Handler) and the MCP tools (RegisterMCP) read and
// write the exclusion set through the same connectivity router the
// controller loads it from.
package feedfilter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/feedfilter/activity"
	"github.com/hazyhaar/feedfilter/connectivity"
	"github.com/hazyhaar/feedfilter/dbopen"
	"github.com/hazyhaar/feedfilter/feedwatch"
	"github.com/hazyhaar/feedfilter/internal/browser"
	"github.com/hazyhaar/feedfilter/internal/shield"
	"github.com/hazyhaar/feedfilter/prefs"
)

// ErrJournalDisabled is returned by Unknowns when the journal is off.
var ErrJournalDisabled = errors.New("feedfilter: unknown-activity journal disabled")

// Filter is the top-level orchestrator. Create one per browser profile.
type Filter struct {
	cfg     *Config
	logger  *slog.Logger
	db      *sql.DB
	router  *connectivity.Router
	bridge  *prefs.Bridge
	client  *prefs.Client
	journal *feedwatch.Journal
	sinkR   feedwatch.Sink
	mgr     *browser.Manager
	panel   *prefs.Panel
	actSel  activity.Selector

	mu      sync.Mutex
	tab     *browser.Tab
	ctrl    *feedwatch.Controller
	applied activity.ExclusionSet // the set the live page was last armed with
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Filter from configuration. It opens the database and
// wires the preference protocol; the browser starts with Start. A nil cfg
// means DefaultConfig.
func New(cfg *Config, logger *slog.Logger, sinks ...feedwatch.Sink) (*Filter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	actSel, err := activity.Compile(cfg.Feed.ActivitySelector)
	if err != nil {
		return nil, fmt.Errorf("feedfilter: activity selector: %w", err)
	}

	db, err := dbopen.Open(cfg.Storage.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithBusyTimeout(cfg.Storage.BusyTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("feedfilter: open db: %w", err)
	}

	f := &Filter{cfg: cfg, logger: logger, db: db, actSel: actSel}
	if err := f.wire(sinks); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

func (f *Filter) wire(extra []feedwatch.Sink) error {
	cfg, logger := f.cfg, f.logger

	kv, err := prefs.NewSQLiteKV(f.db)
	if err != nil {
		return fmt.Errorf("feedfilter: preferences: %w", err)
	}
	f.bridge = prefs.NewBridge(kv, logger)

	f.router = connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(
			connectivity.Recovery(logger),
			connectivity.Logging(logger),
			connectivity.Retry(cfg.Prefs.Retries, cfg.Prefs.RetryBase, logger),
			connectivity.Timeout(cfg.Prefs.Timeout),
		),
	)
	f.router.RegisterTransport("http", connectivity.HTTPFactory())
	f.bridge.RegisterConnectivity(f.router)
	if cfg.Prefs.Remote != "" {
		if err := f.routeRemote(cfg.Prefs.Remote); err != nil {
			return err
		}
	}
	f.client = prefs.NewClient(f.router, logger)

	var sinks []feedwatch.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, feedwatch.NewStdoutSink(nil, sc.Markup))
		case "webhook":
			sinks = append(sinks, feedwatch.NewWebhookSink(sc.URL, logger))
		}
	}
	sinks = append(sinks, extra...)
	if *cfg.Journal.Enabled {
		j, err := feedwatch.NewJournal(f.db, cfg.Journal.MaxExcerpt)
		if err != nil {
			return fmt.Errorf("feedfilter: journal: %w", err)
		}
		f.journal = j
		sinks = append(sinks, j)
	}
	f.sinkR = feedwatch.NewRouterSink(logger, sinks...)

	f.mgr = browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headful:          cfg.Browser.Headful,
		UserDataDir:      cfg.Browser.UserDataDir,
		Bin:              cfg.Browser.Bin,
		Stealth:          *cfg.Browser.Stealth,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})

	f.panel = prefs.NewPanel(f.client, f.Reload, logger)
	return nil
}

// routeRemote sends both preference services to another feedfilter's
// /rpc endpoint.
func (f *Filter) routeRemote(base string) error {
	base = strings.TrimRight(base, "/")
	transportCfg, _ := json.Marshal(map[string]int64{"timeout_ms": f.cfg.Prefs.Timeout.Milliseconds()})
	for _, svc := range []string{prefs.ServiceLoadFilters, prefs.ServiceStoreFilters} {
		err := f.router.SetRoute(connectivity.Route{
			Service:  svc,
			Strategy: "http",
			Endpoint: base + "/rpc/" + svc,
			Config:   transportCfg,
		})
		if err != nil {
			return fmt.Errorf("feedfilter: route %s: %w", svc, err)
		}
	}
	return nil
}

// Start launches the browser, opens the feed and follows the tab's
// navigation until ctx ends or Stop is called. Calling it twice is a no-op.
func (f *Filter) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctrl != nil {
		return nil
	}

	if _, err := f.mgr.Start(ctx); err != nil {
		return fmt.Errorf("feedfilter: start browser: %w", err)
	}
	tab, err := browser.OpenTab(ctx, f.mgr, f.cfg.Feed.URL)
	if err != nil {
		return fmt.Errorf("feedfilter: open tab: %w", err)
	}

	page := feedwatch.NewRodPage(tab.Page, f.cfg.Feed.ContainerSelector, f.cfg.Feed.ActivitySelector, f.logger)
	ctrl := feedwatch.New(page, f.client, feedwatch.Config{
		FeedPath:        f.cfg.Feed.Path,
		PollInterval:    f.cfg.Feed.PollInterval,
		ScrollInterval:  f.cfg.Feed.ScrollInterval,
		ScrollThreshold: f.cfg.Feed.ScrollThreshold,
		Sink:            f.sinkR,
		Logger:          f.logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	f.tab, f.ctrl, f.cancel = tab, ctrl, cancel
	f.applied = f.client.LoadFilters(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := feedwatch.WatchNavigation(runCtx, tab.Page, ctrl, f.logger); err != nil && runCtx.Err() == nil {
			f.logger.Error("feedfilter: navigation watch stopped", "error", err)
		}
	}()

	// A local store can be written by another process (feedfilter
	// -exclude); follow those writes. A remote store is its owner's job.
	if f.cfg.Prefs.Remote == "" && f.cfg.Prefs.WatchInterval > 0 {
		w := prefs.NewWatcher(f.db, prefs.WatchOptions{
			Interval: f.cfg.Prefs.WatchInterval,
			Debounce: f.cfg.Prefs.WatchInterval / 4,
			Logger:   f.logger,
		})
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			w.Run(runCtx, f.syncFilters)
		}()
	}

	f.logger.Info("feedfilter: started", "url", f.cfg.Feed.URL)
	return nil
}

// syncFilters reloads the page when the stored set no longer matches the
// one it was armed with.
func (f *Filter) syncFilters(ctx context.Context) error {
	set := f.client.LoadFilters(ctx)
	f.mu.Lock()
	same := set.Equal(f.applied)
	f.mu.Unlock()
	if same {
		return nil
	}
	f.logger.InfoContext(ctx, "feedfilter: stored filters changed", "excluded", set.Strings())
	return f.reloadWith(ctx, set)
}

// State reports the pipeline state; Inactive before Start.
func (f *Filter) State() feedwatch.State {
	f.mu.Lock()
	ctrl := f.ctrl
	f.mu.Unlock()
	if ctrl == nil {
		return feedwatch.Inactive
	}
	return ctrl.State()
}

// Filters returns the stored exclusion set.
func (f *Filter) Filters(ctx context.Context) activity.ExclusionSet {
	return f.client.LoadFilters(ctx)
}

// Categories returns every category with its shown/hidden state.
func (f *Filter) Categories(ctx context.Context) []prefs.CategoryState {
	return prefs.States(f.Filters(ctx))
}

// StoreFilters persists set without touching the page.
func (f *Filter) StoreFilters(ctx context.Context, set activity.ExclusionSet) error {
	return f.client.StoreFilters(ctx, set)
}

// Apply persists set, then reloads the feed so the next activation runs
// with it.
func (f *Filter) Apply(ctx context.Context, set activity.ExclusionSet) error {
	if err := f.client.StoreFilters(ctx, set); err != nil {
		return err
	}
	return f.reloadWith(ctx, set)
}

// Reload tears the pipeline down and reloads the tab. Before Start it
// does nothing.
func (f *Filter) Reload(ctx context.Context) error {
	return f.reloadWith(ctx, f.client.LoadFilters(ctx))
}

func (f *Filter) reloadWith(ctx context.Context, set activity.ExclusionSet) error {
	f.mu.Lock()
	ctrl, tab := f.ctrl, f.tab
	if ctrl != nil {
		f.applied = set
	}
	f.mu.Unlock()
	if ctrl == nil {
		return nil
	}
	return ctrl.Reload(ctx, tab.Reload)
}

// Unknowns lists the most recently journaled unclassifiable activities.
func (f *Filter) Unknowns(ctx context.Context, limit int) ([]feedwatch.JournalEntry, error) {
	if f.journal == nil {
		return nil, ErrJournalDisabled
	}
	return f.journal.Recent(ctx, limit)
}

// Handler serves the preference panel at / and the preference protocol
// at /rpc/{service}.
func (f *Filter) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(f.logger) {
		r.Use(mw)
	}
	r.Mount("/rpc", connectivity.NewHTTPHandler(f.router))
	r.Mount("/", f.panel.Handler())
	return r
}

// Stop deactivates the pipeline and releases the tab, the browser, the
// sinks and the database.
func (f *Filter) Stop() error {
	f.mu.Lock()
	ctrl, tab, cancel := f.ctrl, f.tab, f.cancel
	f.ctrl, f.tab, f.cancel = nil, nil, nil
	f.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
	}
	f.wg.Wait()
	if ctrl != nil {
		ctrl.Deactivate()
	}
	if tab != nil {
		if err := tab.Close(); err != nil {
			errs = append(errs, fmt.Errorf("feedfilter: close tab: %w", err))
		}
	}
	if err := f.mgr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("feedfilter: close browser: %w", err))
	}
	if err := f.sinkR.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := f.router.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := f.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("feedfilter: close db: %w", err))
	}
	return errors.Join(errs...)
}

// Classification is the offline verdict on one activity.
type Classification struct {
	URN      string              `json:"urn"`
	Category activity.Category   `json:"category"`
	Matching []activity.Category `json:"matching,omitempty"`
	Signals  activity.Signals    `json:"signals"`
}

// Classify runs the classifier over markup without a browser. A page
// yields one entry per activity matched by the configured selector; a
// bare fragment with no activity inside is classified as a whole.
func (f *Filter) Classify(r io.Reader) ([]Classification, error) {
	return Classify(r, f.actSel)
}

// Classify is Filter.Classify with an explicit activity selector.
func Classify(r io.Reader, sel activity.Selector) ([]Classification, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("feedfilter: read markup: %w", err)
	}
	frags, err := activity.ParseDocument(bytes.NewReader(data), sel)
	if err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		frag, err := activity.ParseFragment(string(data))
		if err != nil {
			return nil, err
		}
		frags = []activity.Fragment{frag}
	}

	out := make([]Classification, 0, len(frags))
	for _, fr := range frags {
		out = append(out, Classification{
			URN:      fr.URN(),
			Category: activity.Classify(fr),
			Matching: activity.Matching(fr),
			Signals:  activity.Inspect(fr),
		})
	}
	return out, nil
}
