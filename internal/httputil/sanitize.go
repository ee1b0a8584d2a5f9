package httputil

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFilenameLen is the longest filename, in characters, ever emitted.
const MaxFilenameLen = 200

// FallbackFilename is used when nothing usable survives sanitizing.
const FallbackFilename = "download"

// ValidateURL checks that a URL is well-formed, absolute and uses HTTP(S).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("only HTTP(S) URLs are allowed, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// SanitizeFilename reduces a name to letters, digits, dot, dash, underscore,
// space and parentheses. Anything else, including path separators and
// control bytes, becomes an underscore. Leading dots are removed and the
// result is capped at MaxFilenameLen characters. It is never empty.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			b.WriteByte('_')
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case strings.ContainsRune(".-_ ()", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimSpace(b.String())
	out = strings.TrimLeft(out, ". ")
	out = truncateRunes(out, MaxFilenameLen)
	out = strings.TrimRight(out, " ")

	if out == "" {
		return FallbackFilename
	}
	return out
}

// EnsureExt sanitizes name and makes sure it ends in ext (for example ".mp4")
// without exceeding MaxFilenameLen.
func EnsureExt(name, ext string) string {
	name = SanitizeFilename(name)
	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		return name
	}
	name = truncateRunes(name, MaxFilenameLen-utf8.RuneCountInString(ext))
	return name + ext
}

// ContentDisposition builds an attachment header value with an RFC 5987 filename.
func ContentDisposition(filename string) string {
	return "attachment; filename*=UTF-8''" + url.PathEscape(filename)
}

// HeaderValue strips CR and LF so a value cannot inject extra header lines.
func HeaderValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
