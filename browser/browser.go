// CLAUDE:SUMMARY Capability interface over a live browser session: navigate, evaluate, drain network events, clone cookies.
// Package browser manages the Chrome session that drives edition viewers:
// launch via Rod with stealth applied, expose a minimal Session capability
// surface (navigate/evaluate/network log/cookies/download behavior) so the
// pipeline never touches Rod types directly and can run against fakes.
package browser

import (
	"context"
	"encoding/json"
)

// NetworkEvent is one drained entry from the session's CDP network log.
// TimestampMs is wall-clock milliseconds since epoch.
type NetworkEvent struct {
	Method      string `json:"method"` // CDP method, e.g. Network.requestWillBeSent
	URL         string `json:"url"`
	MimeType    string `json:"mime_type,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Cookie is a browser cookie in the shape needed for session cloning.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Session is the capability surface the pipeline needs from a live browser
// page. The Rod implementation is in this package; tests use fakes.
type Session interface {
	// Navigate loads url and waits for the load event, retrying transient
	// failures with backoff. It updates CurrentURL.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the page's current location.
	CurrentURL() string

	// Eval runs a JS expression or IIFE in the page and returns the result
	// JSON-encoded. A JS null/undefined result encodes as "null".
	Eval(ctx context.Context, js string) (json.RawMessage, error)

	// HTML returns the serialized outer HTML of the current document.
	HTML(ctx context.Context) (string, error)

	// DrainNetwork returns and clears all network events buffered since the
	// previous call. The underlying log is append-only.
	DrainNetwork() []NetworkEvent

	// Cookies returns the session's cookies for all URLs.
	Cookies(ctx context.Context) ([]Cookie, error)

	// UserAgent reports the user agent the page presents to servers.
	UserAgent(ctx context.Context) (string, error)

	// SetDownloadBehavior allows or denies native downloads. When allowed,
	// files land in dir.
	SetDownloadBehavior(ctx context.Context, allow bool, dir string) error

	// Close releases the page. The browser process stays up.
	Close() error
}
