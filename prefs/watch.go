package prefs

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"
)

// VersionFunc reads a version token from the preference database. Two
// calls returning different values mean the stored preferences changed.
type VersionFunc func(ctx context.Context, db *sql.DB) (int64, error)

// LastUpdate is the default VersionFunc: the newest updated_at of the
// preferences table. Every SQLiteKV.Set moves it, whichever process
// wrote.
func LastUpdate(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(updated_at), 0) FROM preferences`).Scan(&v)
	return v, err
}

// WatchOptions tunes a Watcher.
type WatchOptions struct {
	Interval time.Duration // poll period, default 1s
	Debounce time.Duration // quiet period before firing, 0 fires at once
	Version  VersionFunc   // default LastUpdate
	Logger   *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Version == nil {
		o.Version = LastUpdate
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher notices preference writes made outside the running process,
// such as a CLI storing a new exclusion set next to a live feed.
type Watcher struct {
	db   *sql.DB
	opts WatchOptions

	version atomic.Int64
	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	fired   atomic.Int64
}

// WatchStats are point-in-time counters.
type WatchStats struct {
	Checks  int64 `json:"checks"`
	Changes int64 `json:"changes"`
	Errors  int64 `json:"errors"`
	Fired   int64 `json:"fired"`
}

// NewWatcher creates a Watcher on db. Call Run to start polling.
func NewWatcher(db *sql.DB, opts WatchOptions) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() WatchStats {
	return WatchStats{
		Checks:  w.checks.Load(),
		Changes: w.changes.Load(),
		Errors:  w.errors.Load(),
		Fired:   w.fired.Load(),
	}
}

// Version returns the last version the action was run for.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Run polls until ctx ends. When the version moves and stays put for the
// debounce window, action runs. A failed action leaves the version where
// it was, so the next poll retries.
func (w *Watcher) Run(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger

	if v, err := w.opts.Version(ctx, w.db); err != nil {
		log.Warn("prefs: watch seed failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var (
		debounce *time.Timer
		fireCh   <-chan time.Time
		pending  = int64(-1)
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Version(ctx, w.db)
			if err != nil {
				if ctx.Err() == nil {
					w.errors.Add(1)
					log.Warn("prefs: watch poll failed", "error", err)
				}
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			fireCh = debounce.C

		case <-fireCh:
			fireCh = nil
			if pending >= 0 {
				w.fire(ctx, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context) error, v int64) {
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("prefs: watch action failed", "version", v, "error", err)
		return
	}
	w.fired.Add(1)
	w.version.Store(v)
	w.opts.Logger.Debug("prefs: change handled", "version", v)
}
