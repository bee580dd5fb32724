package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/feedfilter/activity"
	"github.com/hazyhaar/feedfilter/connectivity"
)

// Message types of the preference protocol.
const (
	ServiceLoadFilters  = "load_filters"
	ServiceStoreFilters = "store_filters"
)

type storeReply struct {
	Status string `json:"status"`
}

// RegisterConnectivity exposes the bridge as local handlers:
//
//	load_filters   no payload   -> JSON list of identifiers
//	store_filters  JSON list    -> {"status":"stored"}
func (b *Bridge) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal(ServiceLoadFilters, func(ctx context.Context, _ []byte) ([]byte, error) {
		return EncodeFilters(b.LoadFilters(ctx))
	})
	router.RegisterLocal(ServiceStoreFilters, func(ctx context.Context, payload []byte) ([]byte, error) {
		ids, err := DecodeFilters(payload)
		if err != nil {
			return nil, err
		}
		if err := b.StoreFilters(ctx, b.sanitize(ctx, ids)); err != nil {
			return nil, err
		}
		return json.Marshal(storeReply{Status: "stored"})
	})
}

// Client is the pipeline side of the protocol. It satisfies the filter
// source the feed controller expects.
type Client struct {
	router *connectivity.Router
	logger *slog.Logger
}

// NewClient creates a Client calling through router.
func NewClient(router *connectivity.Router, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{router: router, logger: logger}
}

// LoadFilters asks the store for the exclusion set. Transport or decode
// failures degrade to the empty set.
func (c *Client) LoadFilters(ctx context.Context) activity.ExclusionSet {
	resp, err := c.router.Call(ctx, ServiceLoadFilters, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "prefs: load_filters failed, using none", "error", err)
		return activity.NewExclusionSet()
	}
	ids, err := DecodeFilters(resp)
	if err != nil {
		c.logger.WarnContext(ctx, "prefs: load_filters reply unreadable, using none", "error", err)
		return activity.NewExclusionSet()
	}
	set, rejected := activity.ParseExclusionSet(ids)
	if len(rejected) > 0 {
		c.logger.WarnContext(ctx, "prefs: dropping unrecognized filters", "ids", rejected)
	}
	return set
}

// StoreFilters sends the full set to the store.
func (c *Client) StoreFilters(ctx context.Context, set activity.ExclusionSet) error {
	payload, err := EncodeFilters(set)
	if err != nil {
		return err
	}
	resp, err := c.router.Call(ctx, ServiceStoreFilters, payload)
	if err != nil {
		return fmt.Errorf("prefs: store_filters: %w", err)
	}
	if len(resp) == 0 {
		return nil
	}
	var reply storeReply
	if err := json.Unmarshal(resp, &reply); err != nil {
		return fmt.Errorf("prefs: store_filters reply: %w", err)
	}
	if reply.Status != "stored" {
		return fmt.Errorf("prefs: store_filters: unexpected status %q", reply.Status)
	}
	return nil
}
