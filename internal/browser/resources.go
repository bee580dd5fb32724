package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps configuration names to CDP resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// blockSet resolves configuration names to the resource types to block.
// Unknown names are taken as raw CDP types ("Ping", "Manifest").
func blockSet(names []string) map[proto.NetworkResourceType]bool {
	set := make(map[proto.NetworkResourceType]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if t, ok := resourceTypes[key]; ok {
			set[t] = true
			continue
		}
		set[proto.NetworkResourceType(strings.TrimSpace(n))] = true
	}
	return set
}

// applyResourceBlocking fails requests of the blocked types. Scripts and
// XHR are never blocked: the feed renders client-side.
func applyResourceBlocking(page *rod.Page, names []string) error {
	blocked := blockSet(names)
	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if blocked[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return err
	}
	go router.Run()
	return nil
}
