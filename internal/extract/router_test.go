package extract

import (
	"testing"
)

func TestRoute(t *testing.T) {
	router := NewRouter(DefaultRoutes(NewYtDlp("yt-dlp", "ffmpeg"))...)

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.instagram.com/p/Cxyz123/", "instagram"},
		{"https://instagram.com/reel/Cxyz123/", "instagram"},
		{"https://www.tiktok.com/@user/video/7234", "tiktok"},
		{"https://vm.tiktok.com/ZMabc/", "tiktok"},
		{"https://twitter.com/user/status/1", "twitter"},
		{"https://x.com/user/status/1", "twitter"},
		{"https://mobile.twitter.com/user/status/1", ""},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "ytdlp"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "ytdlp"},
		{"https://youtu.be/dQw4w9WgXcQ", "ytdlp"},
		{"https://www.reddit.com/r/videos/comments/abc/title/", "reddit"},
		{"https://old.reddit.com/r/videos/comments/abc/title/", "reddit"},
		{"https://redd.it/abc", "reddit"},
		{"https://imgur.com/a/xyz", "imgur"},
		{"https://i.imgur.com/xyz.jpg", "imgur"},
		{"https://www.pinterest.com/pin/123/", "pinterest"},
		{"https://uk.pinterest.com/pin/123/", "pinterest"},
		{"https://pin.it/abc", "pinterest"},
		{"https://soundcloud.com/artist/track", "soundcloud"},
		{"https://WWW.SOUNDCLOUD.COM/artist/track", "soundcloud"},
		{"https://www.facebook.com/watch?v=1", ""},
		{"https://evil-instagram.com/p/abc", ""},
		{"https://instagram.com.evil.net/p/abc", ""},
		{"not a url", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			ext, ok := router.Route(tt.url)
			if tt.want == "" {
				if ok {
					t.Errorf("Route(%q) = %s, want no match", tt.url, ext.Name())
				}
				return
			}
			if !ok {
				t.Fatalf("Route(%q) found no extractor, want %s", tt.url, tt.want)
			}
			if ext.Name() != tt.want {
				t.Errorf("Route(%q) = %s, want %s", tt.url, ext.Name(), tt.want)
			}
		})
	}
}

func TestRouteFirstMatchWins(t *testing.T) {
	a := &fakeExtractor{name: "first"}
	b := &fakeExtractor{name: "second"}
	router := NewRouter(
		Route{Pattern: mustRe(`^example\.com$`), Extractor: a},
		Route{Pattern: mustRe(`example`), Extractor: b},
	)

	ext, ok := router.Route("https://www.example.com/x")
	if !ok || ext.Name() != "first" {
		t.Fatalf("Route picked %v, want first", ext)
	}
	ext, ok = router.Route("https://cdn.example.org/x")
	if !ok || ext.Name() != "second" {
		t.Fatalf("Route picked %v, want second", ext)
	}
}
