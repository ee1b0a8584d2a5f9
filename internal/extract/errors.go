package extract

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by the yt-dlp extractor when it does not
// recognize the URL at all.
var ErrUnsupported = errors.New("unsupported URL")

// ExtractionError reports that extraction failed for an identifiable reason.
type ExtractionError struct {
	Platform string
	Message  string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Platform, e.Message)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PlatformNotSupportedError reports that no extractor could identify the URL.
type PlatformNotSupportedError struct {
	URL string
}

func (e *PlatformNotSupportedError) Error() string {
	return fmt.Sprintf("no extractor found for URL: %s", e.URL)
}

// failure wraps err as an ExtractionError for platform unless it already is one.
func failure(platform string, err error) error {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExtractionError{Platform: platform, Message: err.Error(), Err: err}
}

// message extracts the human-readable part of an extraction failure.
func message(err error) string {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}
