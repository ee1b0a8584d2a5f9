// Package extract resolves platform URLs into normalized downloadable items.
//
// Each supported platform has an Extractor. A Router picks one by hostname
// and a Resolver drives it, falling back to yt-dlp when it fails.
package extract

import (
	"context"
	"fmt"

	"getbox/internal/media"
)

// Extractor resolves a platform URL into downloadable items.
// Implementations return plain errors; the Resolver decides what reaches the client.
type Extractor interface {
	Name() string
	Resolve(ctx context.Context, rawURL string, ec *Context) (*media.Result, error)
}

// Quality labels shared across extractors.
const (
	qualityMP3       = "MP3 (Converted)"
	qualityThumbnail = "Thumbnail"
	qualityHigh      = "High"
)

// videoWithExtras returns a video item followed by an MP3 transcode of the
// same source and, when thumbURL is set, a thumbnail image.
func videoWithExtras(base, videoURL, thumbURL, ext string) []media.Item {
	if ext == "" {
		ext = ".mp4"
	}
	items := []media.Item{
		{Type: media.Video, URL: videoURL, Filename: base + ext, Quality: qualityHigh},
		{Type: media.Audio, URL: videoURL, Filename: base + ".mp3", Quality: qualityMP3, IsTranscode: true},
	}
	if thumbURL != "" {
		items = append(items, media.Item{
			Type:     media.Image,
			URL:      thumbURL,
			Filename: base + "-thumb.jpg",
			Quality:  qualityThumbnail,
		})
	}
	return items
}

// indexedName appends -i to base for carousel members after the first slot.
func indexedName(base string, i int) string {
	if i == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, i)
}
