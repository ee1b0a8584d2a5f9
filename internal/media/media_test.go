package media

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"getbox/internal/httputil"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"video", Video},
		{"audio", Audio},
		{"image", Image},
		{"IMAGE", Image},
		{"gif", Video},
		{"", Video},
		{"<script>", Video},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseType(tt.in))
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	it := Normalize(Item{Type: "weird", URL: "https://cdn.example.com/a.mp4", Filename: "../a/b.mp4"})

	assert.Equal(t, Video, it.Type)
	assert.Equal(t, "_a_b.mp4", it.Filename)
	assert.Equal(t, httputil.DefaultUserAgent, it.UserAgent)
	assert.NotNil(t, it.Headers)
}

func TestNormalizeAllDropsEmptyURL(t *testing.T) {
	items := NormalizeAll([]Item{
		{Type: Image, URL: "https://i.example.com/1.jpg", Filename: "1.jpg"},
		{Type: Image, URL: "", Filename: "2.jpg"},
	})
	require.Len(t, items, 1)
	assert.Equal(t, "1.jpg", items[0].Filename)
}

func TestNormalizeClearsAudioSourceUnlessMuted(t *testing.T) {
	it := Normalize(Item{URL: "https://x", AudioSourceURL: "https://a"})
	assert.Empty(t, it.AudioSourceURL)

	it = Normalize(Item{URL: "https://x", IsMuted: true, AudioSourceURL: "https://a"})
	assert.Equal(t, "https://a", it.AudioSourceURL)
}

func TestNormalizeMutedOnlyForVideo(t *testing.T) {
	tests := []struct {
		typ  Type
		want bool
	}{
		{Video, true},
		{Audio, false},
		{Image, false},
	}
	for _, tt := range tests {
		it := Normalize(Item{Type: tt.typ, URL: "https://x", IsMuted: true, AudioSourceURL: "https://a"})
		if it.IsMuted != tt.want {
			t.Errorf("Normalize(%s).IsMuted = %v, want %v", tt.typ, it.IsMuted, tt.want)
		}
		if !tt.want && it.AudioSourceURL != "" {
			t.Errorf("Normalize(%s).AudioSourceURL = %q, want empty", tt.typ, it.AudioSourceURL)
		}
	}
}

func TestItemJSONShape(t *testing.T) {
	it := Normalize(Item{Type: Audio, URL: "https://x/a.m4a", Filename: "a.mp3", IsTranscode: true})
	data, err := json.Marshal(it)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"type", "url", "filename", "is_muted", "is_transcode", "userAgent", "headers", "duration"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, true, m["is_transcode"])
}

func TestForwardingEffective(t *testing.T) {
	tests := []struct {
		name      string
		fwd       Forwarding
		overrides []map[string]string
		want      Forwarding
	}{
		{
			name: "dedicated fields win",
			fwd: Forwarding{
				UserAgent: "ua-field",
				Headers:   map[string]string{"User-Agent": "ua-map", "Referer": "ref-map"},
			},
			want: Forwarding{UserAgent: "ua-field", Referer: "ref-map"},
		},
		{
			name:      "per-input override before stored map",
			fwd:       Forwarding{Headers: map[string]string{"cookie": "stored"}},
			overrides: []map[string]string{{"Cookie": "video"}},
			want:      Forwarding{Cookie: "video"},
		},
		{
			name: "case-insensitive keys",
			fwd:  Forwarding{Headers: map[string]string{"user-agent": "lower"}},
			want: Forwarding{UserAgent: "lower"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fwd.Effective(tt.overrides...)
			assert.Equal(t, tt.want.UserAgent, got.UserAgent)
			assert.Equal(t, tt.want.Referer, got.Referer)
			assert.Equal(t, tt.want.Cookie, got.Cookie)
		})
	}
}

func TestForwardingForURL(t *testing.T) {
	fwd, relax := Forwarding{Referer: "https://elsewhere/"}.ForURL("https://v16-webapp.tiktok.com/video/1.mp4")
	assert.True(t, relax)
	assert.Equal(t, TikTokReferer, fwd.Referer)
	assert.Equal(t, httputil.DefaultUserAgent, fwd.UserAgent)

	fwd, relax = Forwarding{UserAgent: "custom"}.ForURL("https://p16-sign.ttcdn-us.com/x.jpg")
	assert.True(t, relax)
	assert.Equal(t, "custom", fwd.UserAgent)

	fwd, relax = Forwarding{Referer: "https://reddit.com/"}.ForURL("https://v.redd.it/abc/DASH_720.mp4")
	assert.False(t, relax)
	assert.Equal(t, "https://reddit.com/", fwd.Referer)
}

func TestJobSources(t *testing.T) {
	j := Job{VideoURL: "https://v", AudioURL: "https://a"}
	assert.Equal(t, "https://v", j.Primary())
	v, a := j.MuxInputs()
	assert.Equal(t, "https://v", v)
	assert.Equal(t, "https://a", a)

	j = Job{URL: "https://u", AudioURL: "https://a"}
	v, _ = j.MuxInputs()
	assert.Equal(t, "https://u", v)
	assert.Equal(t, "", Job{}.Primary())
}
