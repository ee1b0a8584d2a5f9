package extract

import (
	"context"
	"errors"
	"fmt"

	"getbox/internal/media"
)

const (
	soundcloudPageURL = "https://postsyncer.com/tools/soundcloud-downloader"
	soundcloudAPIURL  = "https://postsyncer.com/api/social-media-downloader"
)

// SoundCloud resolves tracks through a third-party downloader. The API
// wants the CSRF token and session cookies of its landing page.
type SoundCloud struct {
	PageURL string
	APIURL  string
}

func NewSoundCloud() *SoundCloud {
	return &SoundCloud{PageURL: soundcloudPageURL, APIURL: soundcloudAPIURL}
}

func (*SoundCloud) Name() string { return "soundcloud" }

type scResponse struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Thumbnail string `json:"thumbnail"`
	Cover     string `json:"cover"`
	Medias    *struct {
		Audios []struct {
			URL     string `json:"url"`
			Quality string `json:"quality"`
		} `json:"audios"`
	} `json:"medias"`
}

func (sc *SoundCloud) Resolve(ctx context.Context, rawURL string, ec *Context) (*media.Result, error) {
	doc, cookies, err := ec.GetPage(ctx, sc.PageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching downloader page: %w", err)
	}
	token, _ := doc.Find(`meta[name="csrf-token"]`).First().Attr("content")
	if token == "" {
		return nil, errors.New("no csrf token")
	}

	headers := map[string]string{
		"Referer":      sc.PageURL,
		"X-CSRF-Token": token,
	}
	if ck := cookieHeader(cookies); ck != "" {
		headers["Cookie"] = ck
	}
	payload := map[string]string{"url": rawURL, "platform": "soundcloud"}

	var resp scResponse
	if err := ec.PostJSON(ctx, sc.APIURL, payload, headers, &resp); err != nil {
		return nil, fmt.Errorf("querying downloader API: %w", err)
	}
	if resp.Medias == nil {
		return nil, errors.New("no data from API")
	}

	name := resp.Title
	if name == "" {
		name = "sound"
	}
	var items []media.Item
	for _, a := range resp.Medias.Audios {
		q := a.Quality
		if q == "" {
			q = "128kbps"
		}
		items = append(items, media.Item{Type: media.Audio, URL: a.URL, Filename: name + ".mp3", Quality: q, IsTranscode: true})
	}
	if len(items) == 0 {
		return nil, errors.New("no audio found")
	}

	artwork := resp.Thumbnail
	if artwork == "" {
		artwork = resp.Cover
	}
	if artwork != "" {
		items = append(items, media.Item{Type: media.Image, URL: artwork, Filename: name + "-cover.jpg", Quality: "Artwork"})
	}

	return &media.Result{
		URLs: items,
		Meta: media.Meta{Title: resp.Title, Author: resp.Author, Thumbnail: artwork, Platform: sc.Name()},
	}, nil
}
