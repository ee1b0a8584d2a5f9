package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"getbox/internal/media"
)

const (
	instagramGraphQLURL = "https://www.instagram.com/graphql/query"
	instagramDocID      = "8845758582119845"
)

var instagramShortcode = regexp.MustCompile(`/(?:p|reels?|tv)/([A-Za-z0-9_-]+)`)

// Instagram resolves posts, reels and carousels through the public GraphQL endpoint.
type Instagram struct {
	GraphQLURL string
	DocID      string
}

func NewInstagram() *Instagram {
	return &Instagram{GraphQLURL: instagramGraphQLURL, DocID: instagramDocID}
}

func (*Instagram) Name() string { return "instagram" }

type igNode struct {
	IsVideo    bool   `json:"is_video"`
	VideoURL   string `json:"video_url"`
	DisplayURL string `json:"display_url"`
}

type igMedia struct {
	igNode
	Owner struct {
		Username string `json:"username"`
	} `json:"owner"`
	Caption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	Children struct {
		Edges []struct {
			Node *igNode `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

type igResponse struct {
	Data struct {
		Media *igMedia `json:"xdt_shortcode_media"`
	} `json:"data"`
}

func (ig *Instagram) Resolve(ctx context.Context, rawURL string, ec *Context) (*media.Result, error) {
	m := instagramShortcode.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, errors.New("shortcode not found")
	}
	shortcode := m[1]

	vars, err := json.Marshal(map[string]string{"shortcode": shortcode})
	if err != nil {
		return nil, err
	}
	form := url.Values{"doc_id": {ig.DocID}, "variables": {string(vars)}}

	var resp igResponse
	if err := ec.PostForm(ctx, ig.GraphQLURL, form, nil, &resp); err != nil {
		return nil, fmt.Errorf("querying graphql: %w", err)
	}
	post := resp.Data.Media
	if post == nil {
		return nil, errors.New("no media data found")
	}

	var nodes []igNode
	for _, e := range post.Children.Edges {
		if e.Node != nil {
			nodes = append(nodes, *e.Node)
		}
	}
	offset := 1
	if len(nodes) == 0 {
		nodes = []igNode{post.igNode}
		offset = 0
	}

	var items []media.Item
	for i, n := range nodes {
		base := indexedName("instagram-"+shortcode, i+offset)
		switch {
		case n.IsVideo && n.VideoURL != "":
			items = append(items, videoWithExtras(base, n.VideoURL, n.DisplayURL, ".mp4")...)
		case n.DisplayURL != "":
			items = append(items, media.Item{Type: media.Image, URL: n.DisplayURL, Filename: base + ".jpg", Quality: qualityHigh})
		}
	}
	if len(items) == 0 {
		return nil, errors.New("post has no downloadable media")
	}

	title := "Instagram post"
	if len(post.Caption.Edges) > 0 && post.Caption.Edges[0].Node.Text != "" {
		title = post.Caption.Edges[0].Node.Text
	}
	return &media.Result{
		URLs: items,
		Meta: media.Meta{Title: title, Author: post.Owner.Username, Platform: ig.Name()},
	}, nil
}
