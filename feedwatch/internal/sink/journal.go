package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/feedfilter/dbopen"
	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// JournalSchema holds activities no rule recognised, one row per URN.
const JournalSchema = `
CREATE TABLE IF NOT EXISTS unknown_activities (
    urn           TEXT PRIMARY KEY,
    event_id      TEXT NOT NULL,
    activation_id TEXT NOT NULL,
    excerpt       TEXT NOT NULL DEFAULT '',
    html          TEXT NOT NULL DEFAULT '',
    seen_count    INTEGER NOT NULL DEFAULT 1,
    first_seen    INTEGER NOT NULL,
    last_seen     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_unknown_last_seen ON unknown_activities(last_seen DESC);
`

// JournalEntry is one journaled unknown activity.
type JournalEntry struct {
	URN          string `json:"urn"`
	EventID      string `json:"event_id"`
	ActivationID string `json:"activation_id"`
	Excerpt      string `json:"excerpt"`
	SeenCount    int    `json:"seen_count"`
	FirstSeen    int64  `json:"first_seen"`
	LastSeen     int64  `json:"last_seen"`
}

// Journal records unknown activities in SQLite with a readable markdown
// excerpt, so new feed layouts can be turned into rules. Other event
// kinds are ignored.
type Journal struct {
	db         *sql.DB
	conv       *converter.Converter
	policy     *bluemonday.Policy
	maxExcerpt int
}

// NewJournal applies the schema and returns the sink. maxExcerpt <= 0
// defaults to 280 runes.
func NewJournal(db *sql.DB, maxExcerpt int) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: DB is required")
	}
	for _, stmt := range strings.Split(JournalSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("journal: schema: %w", err)
		}
	}
	if maxExcerpt <= 0 {
		maxExcerpt = 280
	}
	return &Journal{
		db: db,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		policy:     bluemonday.UGCPolicy(),
		maxExcerpt: maxExcerpt,
	}, nil
}

func (j *Journal) Send(ctx context.Context, ev mutation.Event) error {
	if ev.Kind != mutation.KindUnknown || ev.URN == "" {
		return nil
	}
	ts := ev.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := dbopen.Exec(ctx, j.db,
		`INSERT INTO unknown_activities (urn, event_id, activation_id, excerpt, html, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(urn) DO UPDATE SET
		     event_id = excluded.event_id,
		     activation_id = excluded.activation_id,
		     seen_count = seen_count + 1,
		     last_seen = excluded.last_seen`,
		ev.URN, ev.ID, ev.ActivationID, j.Excerpt(ev.HTML), ev.HTML, ts, ts)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", ev.URN, err)
	}
	return nil
}

// Excerpt sanitizes markup, converts it to markdown and truncates it.
// Conversion failures fall back to the sanitized text.
func (j *Journal) Excerpt(markup string) string {
	if markup == "" {
		return ""
	}
	clean := j.policy.Sanitize(markup)
	md, err := j.conv.ConvertString(clean)
	if err != nil || strings.TrimSpace(md) == "" {
		md = bluemonday.StrictPolicy().Sanitize(clean)
	}
	md = strings.Join(strings.Fields(md), " ")
	if utf8.RuneCountInString(md) <= j.maxExcerpt {
		return md
	}
	r := []rune(md)
	return string(r[:j.maxExcerpt]) + "…"
}

// Recent lists the most recently seen entries.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT urn, event_id, activation_id, excerpt, seen_count, first_seen, last_seen
		 FROM unknown_activities ORDER BY last_seen DESC, urn LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.URN, &e.EventID, &e.ActivationID, &e.Excerpt, &e.SeenCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close does not close the database; the caller owns it.
func (j *Journal) Close() error { return nil }
