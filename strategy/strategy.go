// CLAUDE:SUMMARY Phase-tagged strategy framework: Discovery/Preparation/Acquisition units run in an explicit ordered registry.
// Package strategy models each step of the acquisition pipeline as a named,
// phase-tagged, cost-tagged unit. Fallback order is a first-class ordered
// registry per phase instead of implicit control flow, so the chain itself
// is testable against fake sessions.
package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/kiosko/browser"
	"github.com/hazyhaar/kiosko/fetch"
	"github.com/hazyhaar/kiosko/sniffer"
)

// Phase orders strategy execution. Phases always run Discovery →
// Preparation → Acquisition, never skipped.
type Phase int

const (
	Discovery Phase = iota
	Preparation
	Acquisition
)

func (p Phase) String() string {
	switch p {
	case Discovery:
		return "discovery"
	case Preparation:
		return "preparation"
	case Acquisition:
		return "acquisition"
	}
	return "unknown"
}

// Cost is an execution-cost hint used for logging and ordering rationale
// only, never for scheduling.
type Cost int

const (
	Cheap Cost = iota
	Normal
	Expensive
)

func (c Cost) String() string {
	switch c {
	case Cheap:
		return "cheap"
	case Normal:
		return "normal"
	case Expensive:
		return "expensive"
	}
	return "unknown"
}

// Result is a strategy outcome. A non-empty Path halts the acquisition
// chain with success. Terminal without a path halts the current phase's
// list. Neither means "continue, try next".
type Result struct {
	Path     string
	Terminal bool
}

// Strategy is one polymorphic unit in the chain.
type Strategy interface {
	Name() string
	Phase() Phase
	Cost() Cost
	Attempt(ctx context.Context, t *Target) (Result, error)
}

// ManifestEntry is one download anchor the viewer exposes.
type ManifestEntry struct {
	Href    string `json:"href"`
	Abs     string `json:"abs"`
	PageNum string `json:"pagenum"`
}

// URL returns the entry's best absolute URL.
func (e *ManifestEntry) URL() string {
	if e == nil {
		return ""
	}
	if e.Abs != "" {
		return e.Abs
	}
	return e.Href
}

// Manifest is the structured resource list the Preparation phase extracts
// from a viewer page: per-page links plus an optional complete-document
// link. Acquisition reads it as a side channel.
type Manifest struct {
	All       []ManifestEntry `json:"all"`
	Complete  *ManifestEntry  `json:"complete"`
	FirstPage *ManifestEntry  `json:"firstPage"`
}

// State is the mutable side channel strategies share within one target.
type State struct {
	// DirectURL is a direct resource link Discovery found in the DOM,
	// recorded without downloading.
	DirectURL string

	// Manifest is filled by the Preparation phase.
	Manifest *Manifest
}

// Target is one URL under evaluation plus the live session driving it.
// Owned exclusively by one orchestrator iteration.
type Target struct {
	StartURL    string
	Session     browser.Session
	Sniffer     *sniffer.Sniffer
	DownloadDir string
	Logger      *slog.Logger

	// FetchTimeout bounds a single transfer. Zero uses the fetch default.
	FetchTimeout time.Duration

	State State
}

// download clones the session into a fetch client and transfers rawURL,
// applying the referer heuristic. Session material is gathered fresh for
// every call because cookies may rotate.
func (t *Target) download(ctx context.Context, rawURL, suggested string) (string, error) {
	client, err := fetch.FromSession(ctx, t.Session, fetch.Options{
		DownloadDir: t.DownloadDir,
		Referer:     RefererFor(rawURL, t.Session.CurrentURL()),
		Timeout:     t.FetchTimeout,
		Logger:      t.Logger,
	})
	if err != nil {
		return "", err
	}
	return client.Download(ctx, rawURL, fetch.Meta{SuggestedName: suggested})
}
