package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"getbox/internal/media"
)

// TikTok resolves videos and photo slideshows from the hydration data
// embedded in the video page. The CDN only serves media to requests that
// carry the page cookies and a TikTok referer, so every item gets both.
type TikTok struct{}

func NewTikTok() *TikTok { return &TikTok{} }

func (*TikTok) Name() string { return "tiktok" }

type tiktokItem struct {
	ID     string `json:"id"`
	Desc   string `json:"desc"`
	Author struct {
		Nickname string `json:"nickname"`
	} `json:"author"`
	Video struct {
		PlayAddr string  `json:"playAddr"`
		Cover    string  `json:"cover"`
		Duration float64 `json:"duration"`
	} `json:"video"`
	Music struct {
		PlayURL string `json:"playUrl"`
	} `json:"music"`
	ImagePost struct {
		Images []struct {
			ImageURL struct {
				URLList []string `json:"urlList"`
			} `json:"imageURL"`
		} `json:"images"`
	} `json:"imagePost"`
}

func (tt *TikTok) Resolve(ctx context.Context, rawURL string, ec *Context) (*media.Result, error) {
	doc, cookies, err := ec.GetPage(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}

	item, err := parseTikTokPage(doc)
	if err != nil {
		return nil, err
	}

	fwd := media.Forwarding{Referer: media.TikTokReferer, Cookie: cookieHeader(cookies)}
	base := "tiktok-" + item.ID

	var items []media.Item
	if addr := item.Video.PlayAddr; addr != "" {
		items = append(items, media.Item{Type: media.Video, URL: addr, Filename: base + ".mp4", Quality: "HD", Duration: item.Video.Duration})
		if item.Music.PlayURL == "" {
			items = append(items, media.Item{Type: media.Audio, URL: addr, Filename: base + ".mp3", Quality: qualityMP3, IsTranscode: true})
		}
		if item.Video.Cover != "" {
			items = append(items, media.Item{Type: media.Image, URL: item.Video.Cover, Filename: base + "-cover.jpg", Quality: "Cover"})
		}
	}
	for i, img := range item.ImagePost.Images {
		if len(img.ImageURL.URLList) == 0 {
			continue
		}
		items = append(items, media.Item{Type: media.Image, URL: img.ImageURL.URLList[0], Filename: fmt.Sprintf("%s-%d.jpg", base, i+1)})
	}
	if item.Music.PlayURL != "" {
		items = append(items, media.Item{Type: media.Audio, URL: item.Music.PlayURL, Filename: base + "-audio.mp3", Quality: "Original Audio"})
	}
	if len(items) == 0 {
		return nil, errors.New("could not parse TikTok page")
	}

	for i := range items {
		items[i].Forwarding = fwd
	}

	title := item.Desc
	if title == "" {
		title = "TikTok"
	}
	return &media.Result{
		URLs: items,
		Meta: media.Meta{Title: title, Author: item.Author.Nickname, Thumbnail: item.Video.Cover, Duration: item.Video.Duration, Platform: tt.Name()},
	}, nil
}

// parseTikTokPage reads the current rehydration blob, then the older SIGI_STATE one.
func parseTikTokPage(doc *goquery.Document) (*tiktokItem, error) {
	if raw := doc.Find("script#__UNIVERSAL_DATA_FOR_REHYDRATION__").First().Text(); raw != "" {
		var data struct {
			Scope map[string]json.RawMessage `json:"__DEFAULT_SCOPE__"`
		}
		if err := json.Unmarshal([]byte(raw), &data); err == nil {
			var detail struct {
				ItemInfo struct {
					ItemStruct *tiktokItem `json:"itemStruct"`
				} `json:"itemInfo"`
			}
			if blob, ok := data.Scope["webapp.video-detail"]; ok && json.Unmarshal(blob, &detail) == nil && detail.ItemInfo.ItemStruct != nil {
				return detail.ItemInfo.ItemStruct, nil
			}
		}
	}

	if raw := doc.Find("script#SIGI_STATE").First().Text(); raw != "" {
		var state struct {
			ItemModule map[string]*tiktokItem `json:"ItemModule"`
		}
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("decoding SIGI_STATE: %w", err)
		}
		for _, it := range state.ItemModule {
			if it != nil {
				return it, nil
			}
		}
	}
	return nil, errors.New("could not parse TikTok page")
}
