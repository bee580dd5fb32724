// Package activity classifies feed activities into semantic categories.
//
// A Fragment is the parsed subtree of one feed item. Signal extractors
// answer structural questions about it (is there a header, a nested
// update, an actor with a control menu) and return the text of named
// regions. The rule table composes those signals into eleven predicates
// evaluated in a fixed precedence; anything that matches none of them is
// Unknown.
package activity

import (
	"fmt"
	"slices"
	"strings"
)

// Category is the semantic type of a feed activity.
type Category string

const (
	ConnectionPost            Category = "connection_post"
	ConnectionShare           Category = "connection_share"
	ConnectionComment         Category = "connection_comment"
	ConnectionReaction        Category = "connection_reaction"
	ConnectionWorkAnniversary Category = "connection_work_anniversary"
	ConnectionJobUpdate       Category = "connection_job_update"
	FolloweePost              Category = "followee_post"
	FolloweeComment           Category = "followee_comment"
	GroupPost                 Category = "group_post"
	PromotedPost              Category = "promoted_post"
	JobRecommendation         Category = "job_recommendation"

	// Unknown is returned when no rule matches. It is never filterable.
	Unknown Category = "unknown"
)

var categories = []Category{
	ConnectionPost,
	ConnectionShare,
	ConnectionComment,
	ConnectionReaction,
	ConnectionWorkAnniversary,
	ConnectionJobUpdate,
	FolloweePost,
	FolloweeComment,
	GroupPost,
	PromotedPost,
	JobRecommendation,
}

// Categories returns the filterable categories in classification order.
func Categories() []Category {
	return slices.Clone(categories)
}

// ParseCategory validates a category identifier. Unknown is rejected:
// it is a classifier outcome, not something a user can filter on.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if slices.Contains(categories, c) {
		return c, nil
	}
	return "", fmt.Errorf("activity: unrecognized category %q", s)
}

func (c Category) String() string { return string(c) }

// ExclusionSet is the set of categories the user has chosen to hide.
// It is immutable once built; replace it rather than editing it.
type ExclusionSet struct {
	m map[Category]struct{}
}

// NewExclusionSet builds a set from categories. Unknown and duplicate
// values are ignored.
func NewExclusionSet(cs ...Category) ExclusionSet {
	m := make(map[Category]struct{}, len(cs))
	for _, c := range cs {
		if c == Unknown || c == "" {
			continue
		}
		m[c] = struct{}{}
	}
	return ExclusionSet{m: m}
}

// ParseExclusionSet builds a set from raw identifiers. Identifiers that do
// not name a filterable category are returned separately so the caller
// can report them.
func ParseExclusionSet(ids []string) (ExclusionSet, []string) {
	var (
		valid    []Category
		rejected []string
	)
	for _, id := range ids {
		c, err := ParseCategory(id)
		if err != nil {
			rejected = append(rejected, id)
			continue
		}
		valid = append(valid, c)
	}
	return NewExclusionSet(valid...), rejected
}

// Contains reports whether c is excluded.
func (s ExclusionSet) Contains(c Category) bool {
	_, ok := s.m[c]
	return ok
}

// Len returns the number of excluded categories.
func (s ExclusionSet) Len() int { return len(s.m) }

// List returns the excluded categories sorted by identifier.
func (s ExclusionSet) List() []Category {
	out := make([]Category, 0, len(s.m))
	for c := range s.m {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Strings returns the sorted identifiers, the shape used on the wire.
func (s ExclusionSet) Strings() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = string(c)
	}
	return out
}

// Equal reports whether both sets hold the same categories.
func (s ExclusionSet) Equal(o ExclusionSet) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for c := range s.m {
		if !o.Contains(c) {
			return false
		}
	}
	return true
}
