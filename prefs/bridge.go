// Package prefs persists the user's exclusion set and serves it to the
// feed pipeline.
//
// The pipeline never touches storage directly. It asks for filters over
// a two-message protocol (load_filters, store_filters) carried by a
// connectivity.Router, so the store can live in-process or behind HTTP.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/feedfilter/activity"
)

// FiltersKey is the record holding the serialized exclusion set.
const FiltersKey = "filters"

const emptyFilters = "[]"

// Bridge reads and writes the exclusion set on a KV.
type Bridge struct {
	kv     KV
	logger *slog.Logger
}

// NewBridge creates a Bridge. A nil logger uses slog.Default().
func NewBridge(kv KV, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{kv: kv, logger: logger}
}

// LoadFilters returns the stored exclusion set. It never fails: missing,
// unreadable or corrupted data yields the empty set.
func (b *Bridge) LoadFilters(ctx context.Context) activity.ExclusionSet {
	raw, found, err := b.kv.Get(ctx, FiltersKey)
	if err != nil {
		b.logger.WarnContext(ctx, "prefs: load filters failed, using none", "error", err)
		return activity.NewExclusionSet()
	}
	if !found {
		raw = emptyFilters
	}
	set, err := DecodeFilters([]byte(raw))
	if err != nil {
		b.logger.WarnContext(ctx, "prefs: stored filters corrupted, using none", "error", err)
		return activity.NewExclusionSet()
	}
	return b.sanitize(ctx, set)
}

// StoreFilters replaces the stored record with the full set.
func (b *Bridge) StoreFilters(ctx context.Context, set activity.ExclusionSet) error {
	data, err := EncodeFilters(set)
	if err != nil {
		return err
	}
	if err := b.kv.Set(ctx, FiltersKey, string(data)); err != nil {
		return fmt.Errorf("prefs: store filters: %w", err)
	}
	b.logger.InfoContext(ctx, "prefs: filters stored", "filters", set.Strings())
	return nil
}

func (b *Bridge) sanitize(ctx context.Context, ids []string) activity.ExclusionSet {
	set, rejected := activity.ParseExclusionSet(ids)
	if len(rejected) > 0 {
		b.logger.WarnContext(ctx, "prefs: dropping unrecognized filters", "ids", rejected)
	}
	return set
}

// EncodeFilters serializes a set as a JSON list of identifiers.
func EncodeFilters(set activity.ExclusionSet) ([]byte, error) {
	data, err := json.Marshal(set.Strings())
	if err != nil {
		return nil, fmt.Errorf("prefs: encode filters: %w", err)
	}
	return data, nil
}

// DecodeFilters parses a JSON list of identifiers. Empty input is the
// empty list. Identifiers are not validated here.
func DecodeFilters(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("prefs: decode filters: %w", err)
	}
	return ids, nil
}
