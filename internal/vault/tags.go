package vault

import (
	"sort"
	"strings"
)

// NormalizeTags trims, drops blanks and removes duplicates while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

// SplitTags parses a comma separated tag list.
func SplitTags(raw string) []string {
	return NormalizeTags(strings.Split(raw, ","))
}

// HasTag reports whether tags contains tag exactly.
func HasTag(tags []string, tag string) bool {
	for _, candidate := range tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// DistinctTags merges tag lists into one sorted set.
func DistinctTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, tags := range lists {
		for _, tag := range tags {
			seen[tag] = struct{}{}
		}
	}
	merged := make([]string, 0, len(seen))
	for tag := range seen {
		merged = append(merged, tag)
	}
	sort.Strings(merged)
	return merged
}
