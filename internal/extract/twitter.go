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

const vxTwitterAPI = "https://api.vxtwitter.com"

// Twitter resolves tweets through the vxtwitter API, which mirrors the tweet path.
type Twitter struct {
	APIBase string
}

func NewTwitter() *Twitter { return &Twitter{APIBase: vxTwitterAPI} }

func (*Twitter) Name() string { return "twitter" }

type vxTweet struct {
	TweetID        string `json:"tweetID"`
	Text           string `json:"text"`
	UserName       string `json:"user_name"`
	UserScreenName string `json:"user_screen_name"`
	Media          []struct {
		URL          string  `json:"url"`
		Type         string  `json:"type"`
		ThumbnailURL string  `json:"thumbnail_url"`
		DurationMs   float64 `json:"duration_millis"`
	} `json:"media_extended"`
}

func (tw *Twitter) Resolve(ctx context.Context, rawURL string, ec *Context) (*media.Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing tweet URL: %w", err)
	}
	if !strings.Contains(u.Path, "/status/") {
		return nil, errors.New("not a tweet URL")
	}

	var tweet vxTweet
	if err := ec.GetJSON(ctx, strings.TrimRight(tw.APIBase, "/")+u.Path, nil, &tweet); err != nil {
		return nil, fmt.Errorf("fetching tweet: %w", err)
	}
	if len(tweet.Media) == 0 {
		return nil, errors.New("no media")
	}

	var items []media.Item
	for i, m := range tweet.Media {
		if m.URL == "" {
			continue
		}
		ext := ".mp4"
		if mu, err := url.Parse(m.URL); err == nil && path.Ext(mu.Path) != "" {
			ext = path.Ext(mu.Path)
		}
		base := fmt.Sprintf("twitter-%s-%d", tweet.TweetID, i)

		if m.Type == "video" || m.Type == "gif" {
			extras := videoWithExtras(base, m.URL, m.ThumbnailURL, ext)
			for j := range extras {
				extras[j].Duration = m.DurationMs / 1000
			}
			items = append(items, extras...)
			continue
		}
		items = append(items, media.Item{Type: media.Image, URL: m.URL, Filename: base + ext, Quality: qualityHigh})
	}

	return &media.Result{
		URLs: items,
		Meta: media.Meta{
			Title:    tweet.Text,
			Author:   fmt.Sprintf("%s (@%s)", tweet.UserName, tweet.UserScreenName),
			Platform: tw.Name(),
		},
	}, nil
}
