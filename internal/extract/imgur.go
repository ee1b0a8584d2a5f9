package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"getbox/internal/media"
)

const (
	imgurAPIBase = "https://api.imgur.com/3"
	// Public anonymous client id used by the imgur web app.
	imgurClientID = "546c25a59c58ad7"
)

// Imgur resolves single images and albums through the v3 API.
type Imgur struct {
	APIBase  string
	ClientID string
}

func NewImgur() *Imgur { return &Imgur{APIBase: imgurAPIBase, ClientID: imgurClientID} }

func (*Imgur) Name() string { return "imgur" }

type imgurImage struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	Type     string `json:"type"`
	HasSound bool   `json:"has_sound"`
}

type imgurResponse struct {
	Data *struct {
		imgurImage
		Title      string       `json:"title"`
		AccountURL string       `json:"account_url"`
		Images     []imgurImage `json:"images"`
	} `json:"data"`
}

func (im *Imgur) Resolve(ctx context.Context, rawURL string, ec *Context) (*media.Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing imgur URL: %w", err)
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return nil, errors.New("invalid imgur URL")
	}
	id := strings.SplitN(parts[len(parts)-1], ".", 2)[0]
	if id == "" {
		return nil, errors.New("invalid imgur URL")
	}

	kind := "image"
	for _, p := range parts[:len(parts)-1] {
		if p == "a" || p == "gallery" {
			kind = "album"
		}
	}

	endpoint := fmt.Sprintf("%s/%s/%s?client_id=%s", strings.TrimRight(im.APIBase, "/"), kind, url.PathEscape(id), url.QueryEscape(im.ClientID))
	var resp imgurResponse
	if err := ec.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", kind, err)
	}
	if resp.Data == nil {
		return nil, errors.New("no imgur data")
	}

	images := resp.Data.Images
	if len(images) == 0 {
		images = []imgurImage{resp.Data.imgurImage}
	}

	var items []media.Item
	for _, img := range images {
		if img.Link == "" {
			continue
		}
		ext := path.Ext(img.Link)
		if ext == "" {
			ext = ".jpg"
		}
		base := "imgur-" + img.ID
		if !strings.HasPrefix(img.Type, "video") {
			items = append(items, media.Item{Type: media.Image, URL: img.Link, Filename: base + ext})
			continue
		}
		items = append(items, media.Item{Type: media.Video, URL: img.Link, Filename: base + ext})
		if img.HasSound {
			items = append(items, media.Item{Type: media.Audio, URL: img.Link, Filename: base + ".mp3", Quality: qualityMP3, IsTranscode: true})
		}
	}

	title := resp.Data.Title
	if title == "" {
		title = "Imgur"
	}
	return &media.Result{
		URLs: items,
		Meta: media.Meta{Title: title, Author: resp.Data.AccountURL, Platform: im.Name()},
	}, nil
}
