// CLAUDE:SUMMARY Passive network-log sniffer: classifies drained CDP events into ranked PDF candidate URLs.
// Package sniffer turns the browser's noisy network-event log into a single
// best candidate URL for the edition PDF. It is purely passive: it drains
// events the session has already buffered, never blocks on callbacks, and
// every wait is a clock-bounded poll loop.
package sniffer

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/kiosko/browser"
)

// Origin tags where a candidate was observed.
type Origin string

const (
	OriginRequest  Origin = "network-request"
	OriginResponse Origin = "network-response"
	OriginDOM      Origin = "dom"
)

// Candidate is a URL observed as a plausible edition resource. Immutable
// after creation.
type Candidate struct {
	TimestampMs int64
	URL         string
	Origin      Origin
}

// marker reports whether the URL carries the vendor-signed original-file
// shape. Marker candidates outrank every generic match.
func (c Candidate) marker() bool {
	return strings.Contains(strings.ToLower(c.URL), "original.file")
}

// rePDFSuffix matches paths ending in .pdf, query string allowed.
var rePDFSuffix = regexp.MustCompile(`(?i)\.pdf(?:\?.*)?$`)

// ignoredHosts are tracker/ad domains whose traffic never yields an edition.
var ignoredHosts = []string{
	"lijit.com", "doubleclick.net", "google-analytics.com", "googletagmanager.com",
	"adnxs.com", "criteo.com", "taboola.com", "outbrain.com", "id5-sync.com",
	"rubiconproject.com", "pubmatic.com", "moatads.com", "scorecardresearch.com",
	"openx.net", "agkn.com", "casalemedia.com", "refinery89.com", "prebid.org",
}

func isIgnored(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range ignoredHosts {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

// EventSource is the slice of the browser session the sniffer consumes.
type EventSource interface {
	DrainNetwork() []browser.NetworkEvent
}

// Sniffer accumulates candidates from drained network events inside a
// bounded recency window. Owned by one pipeline iteration; not safe for
// concurrent use beyond the internal buffer guard.
type Sniffer struct {
	src    EventSource
	logger *slog.Logger
	now    func() time.Time
	window time.Duration

	mu          sync.Mutex
	running     bool
	lastEventMs int64
	candidates  []Candidate
}

// Option configures a Sniffer.
type Option func(*Sniffer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sniffer) { s.logger = l }
}

// WithWindow sets the recency window. Default: 8s.
func WithWindow(d time.Duration) Option {
	return func(s *Sniffer) { s.window = d }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sniffer) { s.now = now }
}

// New creates a Sniffer over the given event source, armed and running.
func New(src EventSource, opts ...Option) *Sniffer {
	s := &Sniffer{
		src:     src,
		logger:  slog.Default(),
		now:     time.Now,
		window:  8 * time.Second,
		running: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Running reports whether the sniffer is armed.
func (s *Sniffer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start arms the sniffer. Idempotent.
func (s *Sniffer) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

// Stop disarms the sniffer. Drain becomes a no-op until the next Start.
func (s *Sniffer) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Reset clears accumulated candidates and the last-event watermark.
func (s *Sniffer) Reset() {
	s.mu.Lock()
	s.lastEventMs = 0
	s.candidates = s.candidates[:0]
	s.mu.Unlock()
}

// Drain consumes all newly buffered network events, classifies them, and
// prunes candidates older than the recency window.
func (s *Sniffer) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	for _, ev := range s.src.DrainNetwork() {
		ts := ev.TimestampMs
		if ts <= 0 {
			ts = s.now().UnixMilli()
		}
		if ts > s.lastEventMs {
			s.lastEventMs = ts
		}
		if ev.URL == "" || isIgnored(ev.URL) {
			continue
		}

		origin := OriginRequest
		if ev.Method == "Network.responseReceived" {
			origin = OriginResponse
		}

		low := strings.ToLower(ev.URL)
		pdfMime := strings.Contains(strings.ToLower(ev.MimeType), "pdf")
		if strings.Contains(low, "original.file") || rePDFSuffix.MatchString(ev.URL) || pdfMime {
			s.push(Candidate{TimestampMs: ts, URL: ev.URL, Origin: origin})
		}
	}

	s.prune()
}

// push appends a candidate, suppressing exact duplicate URLs within a short
// lookback so a viewer hammering the same asset does not flood the set.
const dupLookback = 20

func (s *Sniffer) push(c Candidate) {
	start := len(s.candidates) - dupLookback
	if start < 0 {
		start = 0
	}
	for _, prev := range s.candidates[start:] {
		if prev.URL == c.URL {
			return
		}
	}
	s.candidates = append(s.candidates, c)
	s.logger.Debug("sniffer: candidate", "url", c.URL, "origin", c.Origin)
}

func (s *Sniffer) prune() {
	cutoff := s.now().UnixMilli() - s.window.Milliseconds()
	kept := s.candidates[:0]
	for _, c := range s.candidates {
		if c.TimestampMs >= cutoff {
			kept = append(kept, c)
		}
	}
	s.candidates = kept
}

// LastEventMillis returns the timestamp of the newest event ever drained,
// zero if none. Used for network-idle detection.
func (s *Sniffer) LastEventMillis() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventMs
}

// PickBest returns the preferred candidate URL, or "" when the set is empty.
// Any marker candidate beats any generic one regardless of recency; within
// the same class the most recent timestamp wins.
func (s *Sniffer) PickBest() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bestMarker, bestGeneric *Candidate
	for i := range s.candidates {
		c := &s.candidates[i]
		if c.marker() {
			if bestMarker == nil || c.TimestampMs > bestMarker.TimestampMs {
				bestMarker = c
			}
		} else {
			if bestGeneric == nil || c.TimestampMs > bestGeneric.TimestampMs {
				bestGeneric = c
			}
		}
	}
	if bestMarker != nil {
		return bestMarker.URL
	}
	if bestGeneric != nil {
		return bestGeneric.URL
	}
	return ""
}

// Sniff drains once and picks the best candidate.
func (s *Sniffer) Sniff() string {
	s.Drain()
	return s.PickBest()
}

// WaitFor polls Sniff until a candidate appears or timeout elapses. Returns
// "" on timeout or context cancellation. Never waits past timeout plus one
// poll interval.
func (s *Sniffer) WaitFor(ctx context.Context, timeout, poll time.Duration) string {
	if poll <= 0 {
		poll = 150 * time.Millisecond
	}
	deadline := s.now().Add(timeout)
	for s.Running() && s.now().Before(deadline) {
		if u := s.Sniff(); u != "" {
			return u
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(poll):
		}
	}
	return ""
}

// WaitQuiet waits until no network event has been seen for quiet, polling
// the event stream, giving up after total. Reports whether quiescence was
// reached. Drained events still feed the candidate set.
func (s *Sniffer) WaitQuiet(ctx context.Context, quiet, total time.Duration) bool {
	const poll = 200 * time.Millisecond

	s.Drain()
	lastSeen := s.LastEventMillis()
	if lastSeen == 0 {
		lastSeen = s.now().UnixMilli()
	}

	start := s.now()
	for s.now().Sub(start) < total {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(poll):
		}
		s.Drain()
		if ts := s.LastEventMillis(); ts > lastSeen {
			lastSeen = ts
		}
		if s.now().UnixMilli()-lastSeen >= quiet.Milliseconds() {
			return true
		}
	}
	return false
}
