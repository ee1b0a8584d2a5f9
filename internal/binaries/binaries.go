// Package binaries locates the external tools the service shells out to.
package binaries

import (
	"os/exec"

	"github.com/spf13/afero"
)

// Tool names looked up on PATH.
const (
	FFmpegName = "ffmpeg"
	YtDlpName  = "yt-dlp"
)

// Locator resolves binary paths against a filesystem and PATH.
type Locator struct {
	Fs       afero.Fs
	LookPath func(file string) (string, error)
}

// NewLocator returns a Locator backed by the OS filesystem.
func NewLocator() *Locator {
	return &Locator{Fs: afero.NewOsFs(), LookPath: exec.LookPath}
}

// Find returns configured if it names an existing file, then the PATH match
// for name, then name itself so the error surfaces when the tool is run.
func (l *Locator) Find(configured, name string) string {
	if configured != "" {
		if info, err := l.Fs.Stat(configured); err == nil && !info.IsDir() {
			return configured
		}
	}
	if l.LookPath != nil {
		if p, err := l.LookPath(name); err == nil {
			return p
		}
	}
	return name
}

// FFmpeg resolves the ffmpeg binary.
func (l *Locator) FFmpeg(configured string) string { return l.Find(configured, FFmpegName) }

// YtDlp resolves the yt-dlp binary.
func (l *Locator) YtDlp(configured string) string { return l.Find(configured, YtDlpName) }
