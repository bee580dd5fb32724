// Package mutation defines the types exchanged between the host page and
// the feed pipeline: raw mutation records reported by the injected
// observer, and the events the pipeline emits to sinks.
package mutation

import "strings"

// DOM node types as reported by Node.nodeType.
const (
	ElementNode = 1
	TextNode    = 3
	CommentNode = 8
)

// RecordType mirrors MutationRecord.type.
type RecordType string

const (
	ChildList     RecordType = "childList"
	Attributes    RecordType = "attributes"
	CharacterData RecordType = "characterData"
)

// ActivityMarker is the substring an activity's data-urn must contain.
const ActivityMarker = "urn:li:activity"

// Node is one node added by a childList mutation.
type Node struct {
	NodeType int    `json:"node_type"`
	Tag      string `json:"tag,omitempty"`
	URN      string `json:"urn,omitempty"` // data-urn attribute, "" when absent
	HasURN   bool   `json:"has_urn,omitempty"`
	HTML     string `json:"html,omitempty"` // outerHTML for elements
}

// Record is a single MutationRecord, reduced to what the pipeline reads.
type Record struct {
	Type       RecordType `json:"type"`
	TargetType int        `json:"target_type"`
	Added      []Node     `json:"added,omitempty"`
	Removed    int        `json:"removed,omitempty"`
	Attribute  string     `json:"attribute,omitempty"`
}

// ActivityAppend returns the appended activity node when the record has
// the exact shape the pipeline reacts to: a childList change on an
// element, adding exactly one element node whose data-urn names an
// activity. Any other shape (batched inserts, text nodes, attribute or
// character data changes) returns false.
func (r Record) ActivityAppend() (Node, bool) {
	if r.Type != ChildList || r.TargetType != ElementNode || len(r.Added) != 1 {
		return Node{}, false
	}
	n := r.Added[0]
	if n.NodeType != ElementNode || !n.HasURN || !strings.Contains(n.URN, ActivityMarker) {
		return Node{}, false
	}
	return n, true
}
