package sites

import (
	"errors"
	"fmt"

	"wna/fetchhttp"
)

// Sentinel errors shared across fetchers. Callers classify failures with
// errors.Is / errors.As rather than string matching.
var (
	// ErrUnsupportedSource means no fetcher is registered for the URL's host.
	ErrUnsupportedSource = errors.New("unsupported source site")

	// ErrMalformedURL means the host is known but the story ID could not be
	// extracted from the URL.
	ErrMalformedURL = errors.New("malformed story URL")

	// ErrChapterGone is returned for a 404 on a chapter page. Terminal for
	// the chapter; the next reconciliation may archive it.
	ErrChapterGone = errors.New("chapter no longer exists at source")

	// ErrContentMissing is returned when the chapter page loaded but the
	// expected content container is absent. Treated like a parse failure.
	ErrContentMissing = errors.New("chapter content container not found")
)

// ParseError marks a page that downloaded fine but could not be interpreted.
type ParseError struct {
	Site   string
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: failed to parse %s: %s", e.Site, e.URL, e.Reason)
}

// IsTransient reports whether err is worth retrying: network-level failures
// and 5xx statuses qualify, everything else is terminal for the task.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChapterGone) || errors.Is(err, ErrContentMissing) || errors.Is(err, ErrMalformedURL) || errors.Is(err, ErrUnsupportedSource) {
		return false
	}
	var se *fetchhttp.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return false
	}
	// Anything else is assumed to be a network-level error
	return true
}
