package activity

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
)

// item describes the parts of a synthetic feed activity.
type item struct {
	urn       string
	header    string // "" = no header panel
	actor     string // "" = no actor panel
	ctrlMenu  bool   // actor carries the control-menu marker
	nested    bool   // embeds a mini update (share)
	commenter string // "" = no commenter meta
}

func (it item) html() string {
	urn := it.urn
	if urn == "" {
		urn = "urn:li:activity:7000000000000000001"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="feed-shared-update-v2" data-urn="%s">`, urn)
	if it.header != "" {
		fmt.Fprintf(&b, `<div class="feed-shared-header"><span>%s</span></div>`, it.header)
	}
	if it.actor != "" {
		class := "feed-shared-actor"
		if it.ctrlMenu {
			class += " feed-shared-actor--with-control-menu"
		}
		fmt.Fprintf(&b, `<div><div class="%s"><a href="#">%s</a></div></div>`, class, it.actor)
	}
	b.WriteString(`<div class="feed-shared-text">Body text</div>`)
	if it.nested {
		b.WriteString(`<div class="feed-shared-mini-update-v2"><div class="feed-shared-actor">Original author</div></div>`)
	}
	if it.commenter != "" {
		fmt.Fprintf(&b, `<article class="comments-comment-item"><div class="comments-comment-item__post-meta">%s</div></article>`, it.commenter)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func mustFragment(t *testing.T, markup string) Fragment {
	t.Helper()
	f, err := ParseFragment(markup)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	return f
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		item item
		want Category
	}{
		{"connection post", item{actor: "Jane Doe • 2nd Software Engineer", ctrlMenu: true}, ConnectionPost},
		{"connection share", item{actor: "Jane Doe • 1st", ctrlMenu: true, nested: true}, ConnectionShare},
		{"connection comment", item{header: "Jane Doe commented on this", actor: "John Roe • 3rd+", commenter: "Jane Doe • 1st"}, ConnectionComment},
		{"connection reaction", item{header: "Jane Doe and 3 others like this", actor: "John Roe"}, ConnectionReaction},
		{"reaction finds", item{header: "Jane Doe finds this insightful", actor: "John Roe"}, ConnectionReaction},
		{"reaction curious", item{header: "Jane Doe is curious about this", actor: "John Roe"}, ConnectionReaction},
		{"work anniversary", item{header: "Jane Doe has a work anniversary today"}, ConnectionWorkAnniversary},
		{"job update", item{header: "Jane Doe has a job update"}, ConnectionJobUpdate},
		{"followee post company", item{actor: "Acme Corp 12,345 followers", ctrlMenu: true}, FolloweePost},
		{"followee post member", item{actor: "Famous Person • Following", ctrlMenu: true}, FolloweePost},
		{"followee comment via commenter", item{header: "Jane Doe commented on this", actor: "John Roe", commenter: "Jane Doe • Following"}, FolloweeComment},
		{"followee comment via actor", item{header: "Jane Doe commented on this", actor: "Acme • Following"}, FolloweeComment},
		{"group post", item{header: "New post in Gophers", actor: "John Roe", ctrlMenu: true}, GroupPost},
		{"promoted", item{actor: "Acme Corp Promoted", ctrlMenu: true}, PromotedPost},
		{"promoted without menu", item{actor: "Acme Corp Promoted"}, PromotedPost},
		{"promoted beats followers", item{actor: "Acme Corp 5,000 followers Promoted", ctrlMenu: true}, PromotedPost},
		{"job recommendation", item{header: "Jobs recommended for you"}, JobRecommendation},
		{"case insensitive", item{header: "JANE DOE LOVES THIS", actor: "x"}, ConnectionReaction},
		{"unknown header", item{header: "Trending in your network"}, Unknown},
		{"unknown actor without menu", item{actor: "Jane Doe"}, Unknown},
		{"bare item", item{}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustFragment(t, tt.item.html())
			if got := Classify(f); got != tt.want {
				t.Errorf("Classify: got %s, want %s (signals %+v)", got, tt.want, Inspect(f))
			}
		})
	}
}

func TestClassify_HeaderNestedAndMenuIsConnectionPost(t *testing.T) {
	// A header rules out the share predicate, so the connection post rule
	// claims the item even though it embeds another update.
	f := mustFragment(t, item{
		header:   "Suggested",
		actor:    "Jane Doe • 1st",
		ctrlMenu: true,
		nested:   true,
	}.html())
	if got := Classify(f); got != ConnectionPost {
		t.Errorf("Classify: got %s, want %s", got, ConnectionPost)
	}
}

func TestClassify_ZeroFragment(t *testing.T) {
	if got := Classify(Fragment{}); got != Unknown {
		t.Errorf("Classify(zero): got %s, want %s", got, Unknown)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	f := mustFragment(t, item{header: "Jane Doe commented on this", commenter: "Jane • Followers"}.html())
	first := Classify(f)
	for range 5 {
		if got := Classify(f); got != first {
			t.Fatalf("Classify not stable: %s then %s", first, got)
		}
	}
	if first != FolloweeComment {
		t.Errorf("Classify: got %s, want %s", first, FolloweeComment)
	}
}

func TestClassify_ActorMustBeTopLevel(t *testing.T) {
	// The nested update's actor is not the item's actor: "Promoted" inside
	// a shared post must not make the share promoted.
	markup := `<div data-urn="urn:li:activity:1">` +
		`<div><div class="feed-shared-actor feed-shared-actor--with-control-menu">Jane Doe</div></div>` +
		`<div class="feed-shared-mini-update-v2"><div><div class="feed-shared-actor">Acme Promoted</div></div></div>` +
		`</div>`
	f := mustFragment(t, markup)
	if got := ActorText(f).String(); got != "Jane Doe" {
		t.Fatalf("ActorText: got %q, want %q", got, "Jane Doe")
	}
	if got := Classify(f); got != ConnectionShare {
		t.Errorf("Classify: got %s, want %s", got, ConnectionShare)
	}
}

func TestMatching_ReportsEveryRule(t *testing.T) {
	f := mustFragment(t, item{actor: "Jane Doe", ctrlMenu: true, nested: true}.html())
	got := Matching(f)
	if len(got) != 1 || got[0] != ConnectionShare {
		t.Errorf("Matching: got %v, want [%s]", got, ConnectionShare)
	}
}

func TestRules_Order(t *testing.T) {
	rs := Rules()
	cats := Categories()
	if len(rs) != len(cats) {
		t.Fatalf("Rules: got %d, want %d", len(rs), len(cats))
	}
	for i := range rs {
		if rs[i].Category != cats[i] {
			t.Errorf("rule %d: got %s, want %s", i, rs[i].Category, cats[i])
		}
	}
}

func TestMatches_Absent(t *testing.T) {
	re := regexp.MustCompile(`(?i).*`)
	if Matches(Absent, re) {
		t.Error("Matches(Absent) must be false even for a catch-all pattern")
	}
	f := mustFragment(t, item{actor: "x"}.html())
	if HeaderText(f).Present() {
		t.Error("HeaderText: expected absent")
	}
	if !ActorText(f).Present() {
		t.Error("ActorText: expected present")
	}
	if Matches(CommenterText(f), re) {
		t.Error("CommenterText: absent region matched")
	}
}

func TestInspect(t *testing.T) {
	f := mustFragment(t, item{
		urn:       "urn:li:activity:42",
		header:    "  Jane   Doe\n likes this ",
		actor:     "John",
		ctrlMenu:  true,
		commenter: "Jane • 1st",
	}.html())
	s := Inspect(f)
	if s.URN != "urn:li:activity:42" {
		t.Errorf("URN: got %q", s.URN)
	}
	if !s.HasHeader || s.HasNestedItem || !s.HasActorWithControlMenu {
		t.Errorf("structure: got %+v", s)
	}
	if s.Header == nil || *s.Header != "Jane Doe likes this" {
		t.Errorf("Header: got %v", s.Header)
	}
	if s.Commenter == nil || *s.Commenter != "Jane • 1st" {
		t.Errorf("Commenter: got %v", s.Commenter)
	}
}

func TestPatterns_Unanchored(t *testing.T) {
	for _, p := range Patterns() {
		if strings.HasPrefix(p.Re.String(), "^") || strings.HasSuffix(p.Re.String(), "$") {
			t.Errorf("pattern %s is anchored: %s", p.Name, p.Re)
		}
		if !strings.HasPrefix(p.Re.String(), "(?i)") {
			t.Errorf("pattern %s is case-sensitive: %s", p.Name, p.Re)
		}
	}
}
