package activity

import (
	"slices"
	"testing"
)

func TestCategories(t *testing.T) {
	cats := Categories()
	if len(cats) != 11 {
		t.Fatalf("len = %d, want 11", len(cats))
	}
	if slices.Contains(cats, Unknown) {
		t.Fatal("unknown must not be filterable")
	}
	cats[0] = "mutated"
	if Categories()[0] != ConnectionPost {
		t.Fatal("Categories returned shared storage")
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"promoted_post", PromotedPost, true},
		{" group_post ", GroupPost, true},
		{"unknown", "", false},
		{"Promoted_Post", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestExclusionSet(t *testing.T) {
	s := NewExclusionSet(PromotedPost, GroupPost, PromotedPost, Unknown, "")
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if !s.Contains(GroupPost) || s.Contains(Unknown) || s.Contains(ConnectionPost) {
		t.Fatalf("membership wrong: %v", s.Strings())
	}
	if got := s.Strings(); !slices.Equal(got, []string{"group_post", "promoted_post"}) {
		t.Fatalf("Strings = %v", got)
	}
	if !s.Equal(NewExclusionSet(GroupPost, PromotedPost)) {
		t.Fatal("Equal should ignore order")
	}
	if s.Equal(NewExclusionSet(GroupPost)) || NewExclusionSet().Equal(s) {
		t.Fatal("Equal matched different sets")
	}

	var zero ExclusionSet
	if zero.Len() != 0 || zero.Contains(PromotedPost) || !zero.Equal(NewExclusionSet()) {
		t.Fatal("zero set should behave as empty")
	}
}

func TestParseExclusionSet(t *testing.T) {
	s, bad := ParseExclusionSet([]string{"job_recommendation", "unknown", "bogus", "job_recommendation"})
	if s.Len() != 1 || !s.Contains(JobRecommendation) {
		t.Fatalf("set = %v", s.Strings())
	}
	if !slices.Equal(bad, []string{"unknown", "bogus"}) {
		t.Fatalf("rejected = %v", bad)
	}
}
