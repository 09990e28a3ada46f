package core

import "strings"

// NormalizeGroup strips leading/trailing '/' and collapses runs of '/' in
// a group path (spec.md §3). Empty string means "no group".
func NormalizeGroup(group string) string {
	if group == "" {
		return ""
	}
	parts := strings.Split(group, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// groupMatches reports whether a command's normalized group satisfies a
// prefix query (spec.md §4.3 "group membership lookup is prefix-based"):
// group "a/b/c" matches queries "a", "a/b", "a/b/c" but not "a/b/cd" or "d".
func groupMatches(commandGroup, query string) bool {
	query = NormalizeGroup(query)
	if query == "" {
		return commandGroup == ""
	}
	if commandGroup == query {
		return true
	}
	return strings.HasPrefix(commandGroup, query+"/")
}
