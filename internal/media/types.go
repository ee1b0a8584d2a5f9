// Package media defines shared types for the getbox application.
package media

import (
	"strings"
	"time"
)

// Type is the kind of asset an Item points at.
type Type string

const (
	Video Type = "video"
	Audio Type = "audio"
	Image Type = "image"
)

// ParseType maps free-form input onto one of the three item types.
// Anything unrecognized is treated as video.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Audio:
		return Audio
	case Image:
		return Image
	default:
		return Video
	}
}

// Item is one downloadable variant of a resolved post.
type Item struct {
	Type           Type   `json:"type"`
	URL            string `json:"url"`
	Filename       string `json:"filename"`
	Quality        string `json:"quality"`
	IsMuted        bool   `json:"is_muted"`
	AudioSourceURL string `json:"audio_source_url"`
	IsTranscode    bool   `json:"is_transcode"`

	Forwarding

	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

// Meta describes the resolved post as a whole.
type Meta struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Platform  string  `json:"platform,omitempty"`
}

// Result is what a resolution returns to the client.
type Result struct {
	URLs []Item `json:"urls"`
	Meta Meta   `json:"meta"`
}

// Job holds the parameters handed from the prepare step to a streaming endpoint.
// Jobs are written once and never modified.
type Job struct {
	URL      string `json:"url,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
	Filename string `json:"filename,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Type     string `json:"type,omitempty"`

	Forwarding

	// Per-input overrides used by the mux endpoint.
	VideoHeaders map[string]string `json:"videoHeaders,omitempty"`
	AudioHeaders map[string]string `json:"audioHeaders,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Primary returns the first non-empty source locator of the job.
func (j Job) Primary() string {
	for _, u := range []string{j.URL, j.VideoURL, j.AudioURL} {
		if u != "" {
			return u
		}
	}
	return ""
}

// MuxInputs returns the video and audio locators used for remuxing.
func (j Job) MuxInputs() (video, audio string) {
	video = j.VideoURL
	if video == "" {
		video = j.URL
	}
	return video, j.AudioURL
}
