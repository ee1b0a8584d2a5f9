package media

import (
	"getbox/internal/httputil"
)

// Normalize brings an extracted item into canonical shape: constrained type,
// sanitized filename, default user agent and a non-nil header map.
// Only videos can be muted.
func Normalize(it Item) Item {
	it.Type = ParseType(string(it.Type))
	it.Filename = httputil.SanitizeFilename(it.Filename)
	if it.UserAgent == "" {
		it.UserAgent = httputil.DefaultUserAgent
	}
	if it.Headers == nil {
		it.Headers = map[string]string{}
	}
	if it.Type != Video {
		it.IsMuted = false
	}
	if !it.IsMuted {
		it.AudioSourceURL = ""
	}
	if it.Duration < 0 {
		it.Duration = 0
	}
	return it
}

// NormalizeAll normalizes every item and drops those without a locator.
func NormalizeAll(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		out = append(out, Normalize(it))
	}
	return out
}
