package activity

import (
	"fmt"
	"regexp"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector. Matching follows
// Element.querySelector: candidates are descendants of the search root,
// but ancestor parts of the selector may match the root or anything above
// it.
type Selector struct {
	raw string
	m   cascadia.Selector
}

// Compile parses a selector.
func Compile(sel string) (Selector, error) {
	m, err := cascadia.Compile(sel)
	if err != nil {
		return Selector{}, fmt.Errorf("activity: selector %q: %w", sel, err)
	}
	return Selector{raw: sel, m: m}, nil
}

// MustCompile is like Compile but panics on a malformed selector.
func MustCompile(sel string) Selector {
	s, err := Compile(sel)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Selector) String() string { return s.raw }

// Match reports whether n itself matches.
func (s Selector) Match(n *html.Node) bool {
	return s.m != nil && n != nil && s.m.Match(n)
}

// First returns the first matching descendant of root in document order,
// or nil.
func (s Selector) First(root *html.Node) *html.Node {
	if s.m == nil || root == nil {
		return nil
	}
	return cascadia.Query(root, s.m)
}

// All returns every matching descendant of root in document order.
func (s Selector) All(root *html.Node) []*html.Node {
	if s.m == nil || root == nil {
		return nil
	}
	return cascadia.QueryAll(root, s.m)
}

// Exists reports whether any descendant of root matches.
func (s Selector) Exists(root *html.Node) bool { return s.First(root) != nil }

// Structural markers of the feed markup. They are versioned with the
// host page: when it changes, these are the strings to update.
var (
	headerSel          = MustCompile(".feed-shared-header")
	nestedActivitySel  = MustCompile(".feed-shared-mini-update-v2")
	actorSel           = MustCompile("[data-urn^='urn:li:activity'] > div > .feed-shared-actor")
	actorWithCtrlMenu  = MustCompile(".feed-shared-actor--with-control-menu")
	commenterSel       = MustCompile(".comments-comment-item__post-meta")
	defaultActivitySel = MustCompile("[data-urn^='urn:li:activity']")
)

// ActivitySelector matches activity roots in a full page.
func ActivitySelector() Selector { return defaultActivitySel }

// HasNestedItem reports whether the activity embeds another activity
// (the shape of a share).
func HasNestedItem(f Fragment) bool { return nestedActivitySel.Exists(f.root) }

// HasHeader reports whether the activity has a header panel ("X likes
// this", "New post in Y").
func HasHeader(f Fragment) bool { return headerSel.Exists(f.root) }

// HasActorWithControlMenu reports whether the author panel carries the
// moderation control menu.
func HasActorWithControlMenu(f Fragment) bool { return actorWithCtrlMenu.Exists(f.root) }

// HeaderText returns the text of the header panel.
func HeaderText(f Fragment) Text { return textOf(headerSel.First(f.root)) }

// ActorText returns the text of the top-level author panel.
func ActorText(f Fragment) Text { return textOf(actorSel.First(f.root)) }

// CommenterText returns the text of the first commenter's meta line.
func CommenterText(f Fragment) Text { return textOf(commenterSel.First(f.root)) }

// Matches reports whether pattern matches anywhere in t. Absent text
// never matches.
func Matches(t Text, pattern *regexp.Regexp) bool {
	if !t.present || pattern == nil {
		return false
	}
	return pattern.MatchString(t.value)
}

// Signals is a snapshot of every extractor for one fragment.
type Signals struct {
	URN                     string  `json:"urn"`
	HasHeader               bool    `json:"has_header"`
	HasNestedItem           bool    `json:"has_nested_item"`
	HasActorWithControlMenu bool    `json:"has_actor_with_control_menu"`
	Header                  *string `json:"header,omitempty"`
	Actor                   *string `json:"actor,omitempty"`
	Commenter               *string `json:"commenter,omitempty"`
}

// Inspect evaluates every extractor on f.
func Inspect(f Fragment) Signals {
	return Signals{
		URN:                     f.URN(),
		HasHeader:               HasHeader(f),
		HasNestedItem:           HasNestedItem(f),
		HasActorWithControlMenu: HasActorWithControlMenu(f),
		Header:                  textPtr(HeaderText(f)),
		Actor:                   textPtr(ActorText(f)),
		Commenter:               textPtr(CommenterText(f)),
	}
}

func textPtr(t Text) *string {
	if !t.present {
		return nil
	}
	s := t.value
	return &s
}
