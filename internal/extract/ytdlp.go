package extract

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"getbox/internal/media"
)

// CommandRunner runs a program and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtDlp is the universal extractor backed by the yt-dlp binary. It is slow
// and spawns a process per call, so it serves YouTube and the fallback path.
type YtDlp struct {
	Binary  string
	FFmpeg  string
	Timeout time.Duration
	Run     CommandRunner
}

// NewYtDlp returns a YtDlp invoking binary, pointing it at ffmpeg.
func NewYtDlp(binary, ffmpeg string) *YtDlp {
	return &YtDlp{Binary: binary, FFmpeg: ffmpeg, Timeout: 90 * time.Second, Run: runCommand}
}

func (*YtDlp) Name() string { return "ytdlp" }

type ytFormat struct {
	URL         string            `json:"url"`
	Ext         string            `json:"ext"`
	VCodec      string            `json:"vcodec"`
	ACodec      string            `json:"acodec"`
	Height      int               `json:"height"`
	FPS         float64           `json:"fps"`
	ABR         float64           `json:"abr"`
	FormatNote  string            `json:"format_note"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

func (f ytFormat) hasVideo() bool { return f.VCodec != "" && f.VCodec != "none" }

// audioOnly is true when the format declares an audio codec and no video.
func (f ytFormat) audioOnly() bool {
	return !f.hasVideo() && f.ACodec != "" && f.ACodec != "none"
}

// audioCapable counts formats with an unknown audio codec as carrying audio.
func (f ytFormat) audioCapable() bool { return f.ACodec != "none" }

type ytInfo struct {
	ytFormat
	Title        string     `json:"title"`
	Uploader     string     `json:"uploader"`
	Thumbnail    string     `json:"thumbnail"`
	Duration     float64    `json:"duration"`
	ExtractorKey string     `json:"extractor_key"`
	Formats      []ytFormat `json:"formats"`
}

func (y *YtDlp) Resolve(ctx context.Context, rawURL string, _ *Context) (*media.Result, error) {
	if y.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.Timeout)
		defer cancel()
	}

	args := []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--prefer-free-formats"}
	if y.FFmpeg != "" {
		args = append(args, "--ffmpeg-location", y.FFmpeg)
	}
	args = append(args, "--", rawURL)

	out, err := y.Run(ctx, y.Binary, args...)
	if err != nil {
		if strings.Contains(err.Error(), "Unsupported URL") {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	var info ytInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("decoding yt-dlp output: %w", err)
	}
	return buildYtDlpResult(&info), nil
}

// buildYtDlpResult collapses yt-dlp's format list into one video item per
// height and one audio item per ~10kbps bitrate bucket, headed by an MP3
// conversion of the best audio-capable format.
func buildYtDlpResult(info *ytInfo) *media.Result {
	title := info.Title
	if title == "" {
		title = "video"
	}

	formats := info.Formats
	if len(formats) == 0 && info.URL != "" {
		formats = []ytFormat{info.ytFormat}
	}
	formats = lo.Filter(formats, func(f ytFormat, _ int) bool {
		return f.URL != "" && f.Ext != "mhtml" && f.Ext != "3gp"
	})

	bestAudio, haveAudio := pickBestAudio(formats)

	forwarding := func(f ytFormat) media.Forwarding {
		h := f.HTTPHeaders
		if len(h) == 0 {
			h = info.HTTPHeaders
		}
		return media.Forwarding{Headers: h}.Effective()
	}
	filename := func(ext string) string {
		if ext == "" {
			ext = "mp4"
		}
		return title + "." + ext
	}

	videos := lo.Filter(formats, func(f ytFormat, _ int) bool { return !f.audioOnly() })
	slices.SortStableFunc(videos, func(a, b ytFormat) int {
		if c := cmp.Compare(b.Height, a.Height); c != 0 {
			return c
		}
		if c := cmp.Compare(b.FPS, a.FPS); c != 0 {
			return c
		}
		return cmp.Compare(extRank(a.Ext), extRank(b.Ext))
	})
	videos = lo.UniqBy(videos, func(f ytFormat) int { return f.Height })

	audios := lo.Filter(formats, func(f ytFormat, _ int) bool { return f.audioOnly() })
	slices.SortStableFunc(audios, func(a, b ytFormat) int { return cmp.Compare(b.ABR, a.ABR) })
	audios = lo.UniqBy(audios, func(f ytFormat) int { return int(math.Round(f.ABR/10) * 10) })

	var items []media.Item
	for _, f := range videos {
		quality := f.FormatNote
		if quality == "" {
			quality = fmt.Sprintf("%dp", f.Height)
		}
		it := media.Item{
			Type:       media.Video,
			URL:        f.URL,
			Filename:   filename(f.Ext),
			Quality:    quality,
			Forwarding: forwarding(f),
		}
		if f.hasVideo() && f.ACodec == "none" {
			it.IsMuted = true
			if haveAudio {
				it.AudioSourceURL = bestAudio.URL
			}
		}
		items = append(items, it)
	}

	if haveAudio {
		items = append(items, media.Item{
			Type:        media.Audio,
			URL:         bestAudio.URL,
			Filename:    title + ".mp3",
			Quality:     qualityMP3,
			IsTranscode: true,
			Forwarding:  forwarding(bestAudio),
		})
	}
	for _, f := range audios {
		items = append(items, media.Item{
			Type:       media.Audio,
			URL:        f.URL,
			Filename:   filename(f.Ext),
			Quality:    fmt.Sprintf("%dkbps", int(math.Round(f.ABR))),
			Forwarding: forwarding(f),
		})
	}

	for i := range items {
		items[i].Duration = info.Duration
		items[i].Thumbnail = info.Thumbnail
	}
	if info.Thumbnail != "" {
		items = append(items, media.Item{
			Type:       media.Image,
			URL:        info.Thumbnail,
			Filename:   title + ".jpg",
			Quality:    qualityThumbnail,
			Forwarding: media.Forwarding{Headers: info.HTTPHeaders}.Effective(),
		})
	}

	platform := strings.ToLower(info.ExtractorKey)
	if platform == "" {
		platform = "generic"
	}
	return &media.Result{
		URLs: items,
		Meta: media.Meta{
			Title:     title,
			Author:    info.Uploader,
			Thumbnail: info.Thumbnail,
			Duration:  info.Duration,
			Platform:  platform,
		},
	}
}

// pickBestAudio prefers the highest-bitrate audio-only format and otherwise
// any format that may carry audio, even a video.
func pickBestAudio(formats []ytFormat) (ytFormat, bool) {
	better := func(a, b ytFormat) bool {
		if a.ABR != b.ABR {
			return a.ABR > b.ABR
		}
		return a.Height > b.Height
	}
	if only := lo.Filter(formats, func(f ytFormat, _ int) bool { return f.audioOnly() }); len(only) > 0 {
		return lo.MaxBy(only, better), true
	}
	if capable := lo.Filter(formats, func(f ytFormat, _ int) bool { return f.audioCapable() }); len(capable) > 0 {
		return lo.MaxBy(capable, better), true
	}
	return ytFormat{}, false
}

func extRank(ext string) int {
	if ext == "mp4" {
		return 0
	}
	return 1
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s %v: %s", filepath.Base(name), err, lastLine(exitErr.Stderr))
		}
		return nil, err
	}
	return out, nil
}

func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
