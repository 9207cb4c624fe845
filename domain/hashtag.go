package domain

import (
	"regexp"
)

var hashtagPattern = regexp.MustCompile(`#([A-Za-z0-9_-]+)\b`)

// ExtractHashtags returns the distinct tags of content in first-seen order.
// Tags keep their leading '#' and are case-sensitive: #Bug and #bug differ.
func ExtractHashtags(content string) []string {
	matches := hashtagPattern.FindAllString(content, -1)
	tags := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, tag := range matches {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// MergeHashtags appends the incoming tags not already present in existing,
// then drops the oldest entries until at most capacity remain.
// The returned slice never aliases existing.
func MergeHashtags(existing, incoming []string, capacity int) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	present := make(map[string]struct{}, len(merged))
	for _, tag := range merged {
		present[tag] = struct{}{}
	}
	for _, tag := range incoming {
		if _, ok := present[tag]; ok {
			continue
		}
		present[tag] = struct{}{}
		merged = append(merged, tag)
	}
	if capacity >= 0 && len(merged) > capacity {
		merged = merged[len(merged)-capacity:]
	}
	return merged
}
