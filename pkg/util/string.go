package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9\p{Han}]+`) // Allow Chinese characters

// Slugify creates a URL-friendly slug from a title
func Slugify(title string) string {
	slug := strings.ToLower(title)

	// Replace spaces and special characters with hyphens
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	// Limit length
	if len(slug) > 80 {
		slug = slug[:80]
		slug = strings.Trim(slug, "-")
	}

	return slug
}

// Truncate shortens text to at most limit runes, cutting at a word boundary
// where possible and appending an ellipsis.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "…"
}

// ParseTags parses a comma-separated tag string into an array
func ParseTags(tagStr string) []string {
	if tagStr == "" {
		return []string{}
	}

	tagStr = strings.Trim(tagStr, "[]")

	tags := strings.Split(tagStr, ",")
	var cleanTags []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.Trim(tag, "\"'")
		if tag != "" {
			cleanTags = append(cleanTags, tag)
		}
	}

	return cleanTags
}
