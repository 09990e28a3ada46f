package core

import "testing"

func TestNormalizeGroup(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"a":       "a",
		"/a/":     "a",
		"a//b":    "a/b",
		"///a/b/": "a/b",
		"a/b/c":   "a/b/c",
	}
	for in, want := range cases {
		if got := NormalizeGroup(in); got != want {
			t.Errorf("NormalizeGroup(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGroupMatchesIsPrefixBased(t *testing.T) {
	cases := []struct {
		group, query string
		want         bool
	}{
		{"a/b/c", "a", true},
		{"a/b/c", "a/b", true},
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/cd", false},
		{"a/b/c", "d", false},
		{"a/b/cd", "a/b/c", false},
		{"", "", true},
		{"a", "", false},
	}
	for _, tc := range cases {
		if got := groupMatches(tc.group, tc.query); got != tc.want {
			t.Errorf("groupMatches(%q, %q) = %v, want %v", tc.group, tc.query, got, tc.want)
		}
	}
}
