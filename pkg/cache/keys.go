package cache

import (
	"strconv"
	"strings"
	"time"
)

const (
	PostTTL     = time.Hour
	PostListTTL = 5 * time.Minute
	SearchTTL   = time.Hour

	PostListPattern = "posts:*"
	SearchPattern   = "search:*"
)

func PostKey(id string) string { return "post:" + id }

func PostListKey(page, limit int) string {
	return "posts:" + strconv.Itoa(page) + ":" + strconv.Itoa(limit)
}

// SearchKey normalizes q so equivalent queries share an entry.
func SearchKey(q string) string {
	return "search:" + NormalizeQuery(q)
}

func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// PostWritePatterns are the entries a post write makes stale.
func PostWritePatterns(id string) []string {
	out := []string{PostListPattern, SearchPattern}
	if id != "" {
		out = append([]string{PostKey(id)}, out...)
	}
	return out
}
