// Package download streams media through ffmpeg: remuxing separate video and
// audio inputs into fragmented MP4, or transcoding a source to MP3.
// Uses exec.CommandContext with explicit argument slices; output goes to the
// caller's writer and never touches disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"getbox/internal/httputil"
	"getbox/internal/media"
)

// Defaults for a Pipeline.
const (
	DefaultReconnectDelayMax = 5
	DefaultAudioBitrate      = "192k"
	DefaultWaitDelay         = 5 * time.Second
)

// Protocols ffmpeg is allowed to open for inputs.
const protocolWhitelist = "http,https,tcp,tls,crypto"

// Input is one upstream source with the headers it is fetched with.
type Input struct {
	URL string
	media.Forwarding
}

// RemuxInput pairs a video-only and an audio source.
type RemuxInput struct {
	Video Input
	Audio Input
}

// TranscodeInput is the source whose audio is converted to MP3.
type TranscodeInput struct {
	Source Input
}

// ProcessError reports an ffmpeg failure. Started tells whether any output
// had already been written, in which case the response cannot be changed.
type ProcessError struct {
	Started bool
	Stderr  string
	Err     error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ffmpeg failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("ffmpeg failed: %v", e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Pipeline runs ffmpeg processes and tracks how many are alive.
type Pipeline struct {
	FFmpeg            string
	ReconnectDelayMax int
	AudioBitrate      string
	WaitDelay         time.Duration
	Log               *logrus.Entry

	active atomic.Int64
}

// New returns a Pipeline using the ffmpeg binary at path.
func New(ffmpeg string, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		FFmpeg:            ffmpeg,
		ReconnectDelayMax: DefaultReconnectDelayMax,
		AudioBitrate:      DefaultAudioBitrate,
		WaitDelay:         DefaultWaitDelay,
		Log:               log,
	}
}

// Active returns the number of running ffmpeg processes.
func (p *Pipeline) Active() int64 { return p.active.Load() }

// Remux copies the video stream of in.Video and re-encodes the audio of
// in.Audio to AAC, writing fragmented MP4 to w as it is produced.
// onFirstByte is called once, before the first write.
func (p *Pipeline) Remux(ctx context.Context, w io.Writer, in RemuxInput, onFirstByte func()) error {
	args, err := p.RemuxArgs(in)
	if err != nil {
		return err
	}
	return p.run(ctx, w, args, onFirstByte)
}

// Transcode strips video from in.Source and writes MP3 to w.
func (p *Pipeline) Transcode(ctx context.Context, w io.Writer, in TranscodeInput, onFirstByte func()) error {
	args, err := p.TranscodeArgs(in)
	if err != nil {
		return err
	}
	return p.run(ctx, w, args, onFirstByte)
}

// RemuxArgs builds the ffmpeg argument list for Remux.
func (p *Pipeline) RemuxArgs(in RemuxInput) ([]string, error) {
	video, err := p.inputArgs(in.Video)
	if err != nil {
		return nil, fmt.Errorf("video input: %w", err)
	}
	audio, err := p.inputArgs(in.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio input: %w", err)
	}

	args := globalArgs()
	args = append(args, video...)
	args = append(args, audio...)
	args = append(args,
		"-map", "0:v:0", // video from the first input
		"-map", "1:a:0", // audio from the second
		"-c:v", "copy",
		"-c:a", "aac",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		"pipe:1",
	)
	return args, nil
}

// TranscodeArgs builds the ffmpeg argument list for Transcode.
func (p *Pipeline) TranscodeArgs(in TranscodeInput) ([]string, error) {
	src, err := p.inputArgs(in.Source)
	if err != nil {
		return nil, err
	}
	bitrate := p.AudioBitrate
	if bitrate == "" {
		bitrate = DefaultAudioBitrate
	}

	args := globalArgs()
	args = append(args, src...)
	args = append(args,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		"-f", "mp3",
		"pipe:1",
	)
	return args, nil
}

func globalArgs() []string {
	return []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
}

func (p *Pipeline) inputArgs(in Input) ([]string, error) {
	if in.URL == "" {
		return nil, errors.New("missing URL")
	}
	if err := httputil.ValidateURL(in.URL); err != nil {
		return nil, err
	}
	delay := p.ReconnectDelayMax
	if delay <= 0 {
		delay = DefaultReconnectDelayMax
	}
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", strconv.Itoa(delay),
		"-protocol_whitelist", protocolWhitelist,
		"-headers", HeaderBlock(in.Forwarding),
		"-i", in.URL,
	}, nil
}

// HeaderBlock renders f as CRLF-terminated header lines for ffmpeg's
// -headers option. Extra headers follow in key order.
func HeaderBlock(f media.Forwarding) string {
	var b strings.Builder
	line := func(k, v string) {
		v = httputil.HeaderValue(v)
		if v == "" {
			return
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	ua := f.UserAgent
	if ua == "" {
		ua = httputil.DefaultUserAgent
	}
	line("User-Agent", ua)
	line("Referer", f.Referer)
	line("Cookie", f.Cookie)

	for _, k := range f.ExtraHeaders() {
		line(k, f.Headers[k])
	}
	return b.String()
}

func (p *Pipeline) run(ctx context.Context, w io.Writer, args []string, onFirstByte func()) error {
	cmd := exec.CommandContext(ctx, p.FFmpeg, args...)
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	cmd.WaitDelay = p.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &ProcessError{Err: err}
	}
	p.active.Add(1)
	defer p.active.Add(-1)
	// A child of ffmpeg can keep the pipe open after the kill.
	stop := context.AfterFunc(ctx, func() { _ = stdout.Close() })
	defer stop()

	log := p.Log.WithField("pid", cmd.Process.Pid)
	log.Debug("ffmpeg started")

	started, writeErr := pump(stdout, w, onFirstByte)
	if writeErr != nil {
		// The client is gone; nothing else will drain stdout.
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		log.Debug("ffmpeg killed: request cancelled")
		return ctx.Err()
	}
	if writeErr != nil {
		log.WithError(writeErr).Debug("ffmpeg killed: write failed")
		return fmt.Errorf("writing output: %w", writeErr)
	}
	if waitErr != nil {
		log.WithError(waitErr).WithField("stderr", stderr.String()).Warn("ffmpeg failed")
		return &ProcessError{Started: started, Stderr: stderr.String(), Err: waitErr}
	}
	if !started {
		return &ProcessError{Stderr: stderr.String(), Err: errors.New("no output produced")}
	}
	log.Debug("ffmpeg finished")
	return nil
}

// pump copies r to w, flushing after every chunk when w supports it.
func pump(r io.Reader, w io.Writer, onFirstByte func()) (started bool, writeErr error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if !started {
				started = true
				if onFirstByte != nil {
					onFirstByte()
				}
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return started, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			// EOF or the pipe was closed by Wait/kill.
			return started, nil
		}
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// String returns the last non-empty line written.
func (t *tailBuffer) String() string {
	lines := strings.Split(strings.TrimSpace(string(t.buf)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
