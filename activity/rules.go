package activity

import "regexp"

// Region names the fragment substructure a pattern is tested against.
type Region string

const (
	RegionHeader    Region = "header"
	RegionActor     Region = "actor"
	RegionCommenter Region = "commenter"
)

func (r Region) text(f Fragment) Text {
	switch r {
	case RegionHeader:
		return HeaderText(f)
	case RegionActor:
		return ActorText(f)
	case RegionCommenter:
		return CommenterText(f)
	}
	return Absent
}

// Pattern is a named text test against one region of a fragment.
type Pattern struct {
	Name   string
	Re     *regexp.Regexp
	Region Region
}

// Match tests the pattern against its region of f.
func (p Pattern) Match(f Fragment) bool {
	return Matches(p.Region.text(f), p.Re)
}

// On returns a copy of the pattern tested against another region.
func (p Pattern) On(r Region) Pattern {
	p.Region = r
	return p
}

// Pattern table. All patterns are case-insensitive and unanchored.
var (
	reactionVerbs = Pattern{"connection_reaction",
		regexp.MustCompile(`(?i)(like(s)?|celebrate(s)?|support(s)?|love(s)?|find(s)?|reacted to|curious about) this`),
		RegionHeader}
	commentedOnThis = Pattern{"commented_on_this",
		regexp.MustCompile(`(?i)commented on this`), RegionHeader}
	workAnniversary = Pattern{"work_anniversary",
		regexp.MustCompile(`(?i)work anniversary`), RegionHeader}
	jobUpdate = Pattern{"job_update",
		regexp.MustCompile(`(?i)job update`), RegionHeader}
	followingOrFollowers = Pattern{"following_or_followers",
		regexp.MustCompile(`(?i)(following|followers)`), RegionActor}
	following = Pattern{"following",
		regexp.MustCompile(`(?i)following`), RegionActor}
	newPostIn = Pattern{"new_post_in",
		regexp.MustCompile(`(?i)new post in`), RegionHeader}
	promoted = Pattern{"promoted",
		regexp.MustCompile(`(?i)promoted`), RegionActor}
	jobsRecommended = Pattern{"jobs_recommended_for_you",
		regexp.MustCompile(`(?i)jobs recommended for you`), RegionHeader}
)

// Patterns returns the pattern table in declaration order.
func Patterns() []Pattern {
	return []Pattern{
		reactionVerbs,
		commentedOnThis,
		workAnniversary,
		jobUpdate,
		followingOrFollowers,
		following,
		newPostIn,
		promoted,
		jobsRecommended,
	}
}

// Rule is a named predicate producing one category.
type Rule struct {
	Category Category
	Match    func(Fragment) bool
}

// rules is the classification precedence: first match wins. Predicates
// carry their own negative checks; several fragments legitimately
// satisfy more than one structural predicate, so the order matters.
var rules = []Rule{
	{ConnectionPost, isConnectionPost},
	{ConnectionShare, isSharedPost},
	{ConnectionComment, isConnectionComment},
	{ConnectionReaction, isReaction},
	{ConnectionWorkAnniversary, isWorkAnniversary},
	{ConnectionJobUpdate, isJobUpdate},
	{FolloweePost, isFolloweePost},
	{FolloweeComment, isFolloweeComment},
	{GroupPost, isGroupPost},
	{PromotedPost, isPromotedPost},
	{JobRecommendation, isJobRecommendation},
}

// Rules returns the rule table in precedence order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify returns the category of f. It is total: any fragment,
// including the zero Fragment, yields exactly one category.
func Classify(f Fragment) Category {
	for _, r := range rules {
		if r.Match(f) {
			return r.Category
		}
	}
	return Unknown
}

// Matching returns every category whose predicate holds for f, in
// precedence order. Classify returns the first of them.
func Matching(f Fragment) []Category {
	var out []Category
	for _, r := range rules {
		if r.Match(f) {
			out = append(out, r.Category)
		}
	}
	return out
}

func isConnectionPost(f Fragment) bool {
	return HasActorWithControlMenu(f) &&
		!(isFolloweePost(f) || isPromotedPost(f) || isGroupPost(f) || isSharedPost(f))
}

func isSharedPost(f Fragment) bool {
	return HasActorWithControlMenu(f) && HasNestedItem(f) && !HasHeader(f)
}

// byFollowee is true when the commenter line or the author panel shows
// a follow relationship rather than a connection.
func byFollowee(f Fragment) bool {
	return followingOrFollowers.On(RegionCommenter).Match(f) || following.Match(f)
}

func isConnectionComment(f Fragment) bool {
	return commentedOnThis.Match(f) && !byFollowee(f)
}

func isFolloweeComment(f Fragment) bool {
	return commentedOnThis.Match(f) && byFollowee(f)
}

func isReaction(f Fragment) bool { return reactionVerbs.Match(f) }

func isWorkAnniversary(f Fragment) bool { return workAnniversary.Match(f) }

func isJobUpdate(f Fragment) bool { return jobUpdate.Match(f) }

func isFolloweePost(f Fragment) bool {
	return HasActorWithControlMenu(f) && followingOrFollowers.Match(f) && !isPromotedPost(f)
}

func isGroupPost(f Fragment) bool { return newPostIn.Match(f) }

func isPromotedPost(f Fragment) bool { return promoted.Match(f) }

func isJobRecommendation(f Fragment) bool { return jobsRecommended.Match(f) }
