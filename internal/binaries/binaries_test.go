package binaries

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func TestFind(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/opt/ffmpeg/bin/ffmpeg", []byte("bin"), 0o755)
	fs.MkdirAll("/opt/dir", 0o755)

	onPath := func(file string) (string, error) {
		if file == FFmpegName {
			return "/usr/bin/ffmpeg", nil
		}
		return "", errors.New("not found")
	}
	l := &Locator{Fs: fs, LookPath: onPath}

	tests := []struct {
		name       string
		configured string
		tool       string
		want       string
	}{
		{"configured exists", "/opt/ffmpeg/bin/ffmpeg", FFmpegName, "/opt/ffmpeg/bin/ffmpeg"},
		{"configured missing", "/nope/ffmpeg", FFmpegName, "/usr/bin/ffmpeg"},
		{"configured is dir", "/opt/dir", FFmpegName, "/usr/bin/ffmpeg"},
		{"path lookup", "", FFmpegName, "/usr/bin/ffmpeg"},
		{"bare name", "", YtDlpName, YtDlpName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Find(tt.configured, tt.tool); got != tt.want {
				t.Errorf("Find(%q, %q) = %q, want %q", tt.configured, tt.tool, got, tt.want)
			}
		})
	}

	if got := l.YtDlp(""); got != YtDlpName {
		t.Errorf("YtDlp() = %q", got)
	}
	if got := l.FFmpeg(""); got != "/usr/bin/ffmpeg" {
		t.Errorf("FFmpeg() = %q", got)
	}
}
