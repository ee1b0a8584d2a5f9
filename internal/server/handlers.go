package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"getbox/internal/download"
	"getbox/internal/extract"
	"getbox/internal/handoff"
	"getbox/internal/httputil"
	"getbox/internal/media"
	"getbox/internal/proxy"
)

const (
	maxRequestBody = 1 << 20

	msgBlocked = "URL blocked (SSRF protection)"
	msgExpired = "Download link expired or invalid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "URL required")
		return
	}
	if !s.guard.Allowed(r.Context(), body.URL) {
		writeError(w, http.StatusBadRequest, msgBlocked)
		return
	}

	res, err := s.resolver.Resolve(r.Context(), body.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type prepareRequest struct {
	URL          string                     `json:"url"`
	VideoURL     string                     `json:"videoUrl"`
	AudioURL     string                     `json:"audioUrl"`
	Filename     string                     `json:"filename"`
	Quality      string                     `json:"quality"`
	Type         string                     `json:"type"`
	UserAgent    string                     `json:"userAgent"`
	Referer      string                     `json:"referer"`
	Cookie       string                     `json:"cookie"`
	Headers      map[string]json.RawMessage `json:"headers"`
	VideoHeaders map[string]string          `json:"videoHeaders"`
	AudioHeaders map[string]string          `json:"audioHeaders"`
}

// job converts the request, splitting nested "video"/"audio" objects in
// headers out into the per-input maps unless those were sent explicitly.
func (p prepareRequest) job() media.Job {
	job := media.Job{
		URL:      strings.TrimSpace(p.URL),
		VideoURL: strings.TrimSpace(p.VideoURL),
		AudioURL: strings.TrimSpace(p.AudioURL),
		Filename: p.Filename,
		Quality:  p.Quality,
		Type:     p.Type,
		Forwarding: media.Forwarding{
			UserAgent: p.UserAgent,
			Referer:   p.Referer,
			Cookie:    p.Cookie,
		},
		VideoHeaders: p.VideoHeaders,
		AudioHeaders: p.AudioHeaders,
	}

	for k, raw := range p.Headers {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			if job.Headers == nil {
				job.Headers = make(map[string]string)
			}
			job.Headers[k] = str
			continue
		}
		var nested map[string]string
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}
		switch strings.ToLower(k) {
		case "video":
			if job.VideoHeaders == nil {
				job.VideoHeaders = nested
			}
		case "audio":
			if job.AudioHeaders == nil {
				job.AudioHeaders = nested
			}
		}
	}
	return job
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	job := req.job()
	if job.Primary() == "" {
		writeError(w, http.StatusBadRequest, "Missing url/videoUrl/audioUrl")
		return
	}
	for _, u := range []string{job.URL, job.VideoURL, job.AudioURL} {
		if u == "" {
			continue
		}
		if err := httputil.ValidateURL(u); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid URL: "+err.Error())
			return
		}
	}

	id, err := s.store.Put(r.Context(), job)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// loadJob returns the stored job for ?id=, or one built from the raw query
// parameters. It writes the error response itself and reports false on
// failure.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (media.Job, bool) {
	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		job, err := s.store.Get(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return media.Job{}, false
		}
		return job, true
	}
	return media.Job{
		URL:      q.Get("url"),
		VideoURL: q.Get("videoUrl"),
		AudioURL: q.Get("audioUrl"),
		Filename: q.Get("filename"),
		Forwarding: media.Forwarding{
			UserAgent: q.Get("userAgent"),
			Referer:   q.Get("referer"),
			Cookie:    q.Get("cookie"),
		},
	}, true
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	src := job.Primary()
	if src == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	err := s.proxy.Serve(r.Context(), w, proxy.Request{
		URL:        src,
		Filename:   job.Filename,
		Forwarding: job.Forwarding.Effective(),
		Range:      r.Header.Get("Range"),
	})
	if err != nil {
		s.fail(w, r, err)
	}
}

func (s *Server) handleMux(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	videoURL, audioURL := job.MuxInputs()
	if videoURL == "" || audioURL == "" {
		writeError(w, http.StatusBadRequest, "Missing videoUrl or audioUrl")
		return
	}
	if !s.guard.Allowed(r.Context(), videoURL) || !s.guard.Allowed(r.Context(), audioURL) {
		writeError(w, http.StatusBadRequest, msgBlocked)
		return
	}

	filename := httputil.EnsureExt(withDefault(job.Filename, "video"), ".mp4")
	video, _ := job.Forwarding.Effective(job.VideoHeaders).ForURL(videoURL)
	audio, _ := job.Forwarding.Effective(job.AudioHeaders).ForURL(audioURL)

	videoURL, err := s.proxy.Locate(r.Context(), videoURL, video)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	audioURL, err = s.proxy.Locate(r.Context(), audioURL, audio)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	err = s.pipeline.Remux(r.Context(), w, download.RemuxInput{
		Video: download.Input{URL: videoURL, Forwarding: video},
		Audio: download.Input{URL: audioURL, Forwarding: audio},
	}, streamHeaders(w, "video/mp4", filename))
	if err != nil {
		s.fail(w, r, err)
	}
}

func (s *Server) handleTranscode(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	src := job.Primary()
	if src == "" {
		writeError(w, http.StatusBadRequest, "Missing url")
		return
	}
	if !s.guard.Allowed(r.Context(), src) {
		writeError(w, http.StatusBadRequest, msgBlocked)
		return
	}

	filename := httputil.EnsureExt(withDefault(job.Filename, "audio"), ".mp3")
	fwd, _ := job.Forwarding.Effective().ForURL(src)
	src, err := s.proxy.Locate(r.Context(), src, fwd)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	err = s.pipeline.Transcode(r.Context(), w, download.TranscodeInput{
		Source: download.Input{URL: src, Forwarding: fwd},
	}, streamHeaders(w, "audio/mpeg", filename))
	if err != nil {
		s.fail(w, r, err)
	}
}

// streamHeaders commits the attachment headers once output starts.
func streamHeaders(w http.ResponseWriter, contentType, filename string) func() {
	return func() {
		h := w.Header()
		h.Set("Content-Type", contentType)
		h.Set("Content-Disposition", httputil.ContentDisposition(filename))
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
	}
}

func withDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// fail maps err to a JSON error response, or aborts the connection when the
// response has already started.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := s.log.WithFields(logrus.Fields{"path": r.URL.Path}).WithError(err)

	var (
		notSupported *extract.PlatformNotSupportedError
		extraction   *extract.ExtractionError
		upstream     *proxy.UpstreamStatusError
		network      *httputil.NetworkError
		process      *download.ProcessError
		stream       *proxy.StreamError
	)

	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		log.Debug("client went away")
	case errors.As(err, &stream):
		log.Warn("stream aborted")
		panic(http.ErrAbortHandler)
	case errors.As(err, &process) && process.Started:
		log.Warn("ffmpeg failed mid-stream")
		panic(http.ErrAbortHandler)
	case errors.As(err, &process):
		log.Warn("ffmpeg failed")
		msg := "FFmpeg error"
		if process.Stderr != "" {
			msg += ": " + process.Stderr
		}
		writeError(w, http.StatusBadGateway, msg)
	case errors.Is(err, handoff.ErrNotFound):
		writeError(w, http.StatusNotFound, msgExpired)
	case errors.Is(err, proxy.ErrBlocked):
		writeError(w, http.StatusBadRequest, msgBlocked)
	case errors.As(err, &notSupported):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &extraction):
		log.Warn("extraction failed")
		writeError(w, http.StatusBadGateway, extraction.Message)
	case errors.As(err, &upstream):
		log.Warn("upstream rejected request")
		writeError(w, http.StatusBadGateway, upstream.Error())
	case errors.As(err, &network):
		log.Warn("upstream unreachable")
		writeError(w, http.StatusBadGateway, "Upstream request failed")
	default:
		if streamStarted(w) {
			log.Warn("stream aborted")
			panic(http.ErrAbortHandler)
		}
		log.Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// streamStarted reports whether a response status has been written.
func streamStarted(w http.ResponseWriter) bool {
	if rec, ok := w.(*statusRecorder); ok {
		return rec.status != 0
	}
	return false
}
