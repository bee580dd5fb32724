package activity

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// URNAttr is the attribute carrying an activity's stable identifier.
const URNAttr = "data-urn"

// URNMarker is the substring that identifies an activity URN.
const URNMarker = "urn:li:activity"

// Fragment is a read-only view of one feed activity subtree. The zero
// Fragment is valid and classifies as Unknown.
type Fragment struct {
	root *html.Node
}

// NewFragment wraps an already parsed node.
func NewFragment(n *html.Node) Fragment {
	return Fragment{root: n}
}

// ParseFragment parses the outer HTML of one activity. When the markup
// holds several top-level elements, the first one is the fragment root.
func ParseFragment(markup string) (Fragment, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return Fragment{}, fmt.Errorf("activity: parse fragment: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return Fragment{root: n}, nil
		}
	}
	return Fragment{}, fmt.Errorf("activity: parse fragment: no element")
}

// ParseDocument parses a full page and returns every activity matched by
// sel, in document order.
func ParseDocument(r io.Reader, sel Selector) ([]Fragment, error) {
	if sel.m == nil {
		return nil, fmt.Errorf("activity: parse document: no activity selector")
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("activity: parse document: %w", err)
	}
	nodes := doc.FindMatcher(sel.m).Nodes
	out := make([]Fragment, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Fragment{root: n})
	}
	return out, nil
}

// Node returns the fragment root, or nil for the zero Fragment.
func (f Fragment) Node() *html.Node { return f.root }

// URN returns the activity identifier of the root, or "".
func (f Fragment) URN() string {
	if f.root == nil {
		return ""
	}
	for _, a := range f.root.Attr {
		if a.Key == URNAttr {
			return a.Val
		}
	}
	return ""
}

// IsActivity reports whether the root carries an activity URN.
func (f Fragment) IsActivity() bool {
	return strings.Contains(f.URN(), URNMarker)
}

// HTML renders the fragment back to markup.
func (f Fragment) HTML() string {
	if f.root == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, f.root); err != nil {
		return ""
	}
	return b.String()
}

// Text is the text content of a fragment region. The zero value is
// Absent: the region does not exist.
type Text struct {
	value   string
	present bool
}

// Absent is the sentinel for a missing region.
var Absent = Text{}

// Present reports whether the region exists.
func (t Text) Present() bool { return t.present }

// String returns the collapsed text, "" when absent.
func (t Text) String() string { return t.value }

func textOf(n *html.Node) Text {
	if n == nil {
		return Absent
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return Text{value: strings.Join(strings.Fields(b.String()), " "), present: true}
}
