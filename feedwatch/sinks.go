package feedwatch

import (
	"database/sql"
	"io"
	"log/slog"

	"github.com/hazyhaar/feedfilter/feedwatch/internal/sink"
	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// Sink is the output interface for pipeline events.
type Sink = sink.Sink

// EventFunc is called for each event delivered to a callback sink.
type EventFunc = sink.EventFunc

// Journal records unknown activities in SQLite.
type Journal = sink.Journal

// JournalEntry is one row of the unknown-activity journal.
type JournalEntry = sink.JournalEntry

// JournalSchema is the journal's table definition.
const JournalSchema = sink.JournalSchema

// NewStdoutSink creates a JSON-lines sink. A nil writer means os.Stdout;
// markup keeps the item HTML of unknown events.
func NewStdoutSink(w io.Writer, markup bool) Sink {
	return sink.NewStdout(w, markup)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink. When kinds are given only
// those are delivered.
func NewCallbackSink(fn EventFunc, kinds ...mutation.Kind) Sink {
	return sink.NewCallback(fn, kinds...)
}

// NewJournal creates the unknown-activity journal on db.
func NewJournal(db *sql.DB, maxExcerpt int) (*Journal, error) {
	return sink.NewJournal(db, maxExcerpt)
}

// NewRouterSink fans events out to several sinks.
func NewRouterSink(logger *slog.Logger, sinks ...Sink) Sink {
	return sink.NewRouter(logger, sinks...)
}
