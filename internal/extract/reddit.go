package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"getbox/internal/media"
)

var redditVideoExt = regexp.MustCompile(`(?i)\.(mp4|webm|mkv)$`)

// Reddit resolves posts through the public .json view of a permalink.
// Reddit-hosted videos are served as DASH renditions without audio; the
// companion audio rendition sits next to them.
type Reddit struct{}

func NewReddit() *Reddit { return &Reddit{} }

func (*Reddit) Name() string { return "reddit" }

type redditPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	URL       string `json:"url"`
	Override  string `json:"url_overridden_by_dest"`
	Thumbnail string `json:"thumbnail"`
	IsGallery bool   `json:"is_gallery"`
	IsVideo   bool   `json:"is_video"`

	MediaMetadata map[string]struct {
		S struct {
			U   string `json:"u"`
			Gif string `json:"gif"`
		} `json:"s"`
	} `json:"media_metadata"`
	GalleryData struct {
		Items []struct {
			MediaID string `json:"media_id"`
		} `json:"items"`
	} `json:"gallery_data"`
	Media struct {
		RedditVideo struct {
			FallbackURL string  `json:"fallback_url"`
			HasAudio    bool    `json:"has_audio"`
			Duration    float64 `json:"duration"`
		} `json:"reddit_video"`
	} `json:"media"`
}

type redditListing []struct {
	Data struct {
		Children []struct {
			Data *redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (rd *Reddit) Resolve(ctx context.Context, rawURL string, ec *Context) (*media.Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing reddit URL: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/") + ".json"

	var listing redditListing
	if err := ec.GetJSON(ctx, u.String(), nil, &listing); err != nil {
		return nil, fmt.Errorf("fetching post: %w", err)
	}
	if len(listing) == 0 || len(listing[0].Data.Children) == 0 || listing[0].Data.Children[0].Data == nil {
		return nil, errors.New("invalid reddit response")
	}
	post := listing[0].Data.Children[0].Data

	var items []media.Item
	video := post.Media.RedditVideo
	switch {
	case post.IsGallery && len(post.MediaMetadata) > 0:
		for _, g := range post.GalleryData.Items {
			meta, ok := post.MediaMetadata[g.MediaID]
			if !ok {
				continue
			}
			src := meta.S.U
			if src == "" {
				src = meta.S.Gif
			}
			if src != "" {
				items = append(items, media.Item{Type: media.Image, URL: unescapeAmp(src), Filename: "reddit-" + g.MediaID + ".jpg"})
			}
		}
	case post.IsVideo && video.FallbackURL != "":
		items = redditVideoItems(post, unescapeAmp(video.FallbackURL))
	default:
		direct := post.Override
		if direct == "" {
			direct = post.URL
		}
		direct = unescapeAmp(direct)
		if redditVideoExt.MatchString(strings.SplitN(direct, "?", 2)[0]) {
			items = append(items, media.Item{Type: media.Video, URL: direct, Filename: "reddit-" + post.ID + ".mp4"})
		} else {
			items = append(items, media.Item{Type: media.Image, URL: direct, Filename: "reddit-" + post.ID + ".jpg"})
		}
	}

	return &media.Result{
		URLs: items,
		Meta: media.Meta{Title: post.Title, Author: post.Author, Platform: rd.Name(), Duration: video.Duration},
	}, nil
}

func redditVideoItems(post *redditPost, videoURL string) []media.Item {
	base := "reddit-" + post.ID
	v := media.Item{Type: media.Video, URL: videoURL, Filename: base + ".mp4", Quality: qualityHigh, Duration: post.Media.RedditVideo.Duration}
	items := []media.Item{v}

	if post.Media.RedditVideo.HasAudio {
		if audio := redditAudioURL(videoURL); audio != "" {
			items[0].IsMuted = true
			items[0].AudioSourceURL = audio
			items = append(items, media.Item{Type: media.Audio, URL: audio, Filename: base + ".mp3", Quality: qualityMP3, IsTranscode: true})
		}
	}
	if strings.HasPrefix(post.Thumbnail, "http") {
		items = append(items, media.Item{Type: media.Image, URL: unescapeAmp(post.Thumbnail), Filename: base + "-thumb.jpg", Quality: qualityThumbnail})
	}
	return items
}

// redditAudioURL derives the DASH audio rendition from a video rendition URL.
func redditAudioURL(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil || !strings.Contains(path.Base(u.Path), "DASH_") {
		return ""
	}
	u.Path = path.Join(path.Dir(u.Path), "DASH_AUDIO_128.mp4")
	u.RawQuery = ""
	return u.String()
}

func unescapeAmp(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}
