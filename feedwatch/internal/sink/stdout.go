package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/feedfilter/feedwatch/mutation"
)

// Stdout writes one JSON line per event, for jq or a log shipper. The
// item markup carried by unknown events is left out unless markup was
// requested: the journal already keeps an excerpt of it.
type Stdout struct {
	mu     sync.Mutex
	w      io.Writer
	markup bool
}

// NewStdout creates a Stdout sink on w, os.Stdout when nil.
func NewStdout(w io.Writer, markup bool) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w, markup: markup}
}

func (s *Stdout) Send(_ context.Context, ev mutation.Event) error {
	if !s.markup {
		ev.HTML = ""
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

func (s *Stdout) Close() error { return nil }
