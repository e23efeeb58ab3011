package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// suggestedFromViewer builds a metadata-based filename stem from the
// viewer's query parameters (publication/date), used when the resource URL
// itself carries no usable name.
func suggestedFromViewer(current string) string {
	u, err := url.Parse(current)
	if err != nil {
		return ""
	}
	q := u.Query()
	pub := q.Get("publication")
	date := q.Get("date")
	if pub == "" && date == "" {
		return ""
	}
	if pub == "" {
		pub = "edicion"
	}
	if date == "" {
		date = "sin-fecha"
	}
	return pub + "-" + date
}

// DirectResource fetches immediately when the target resource is already at
// hand: either the current page URL is the document itself, or Discovery
// recorded a direct link. Cheapest strategy; always tried first.
type DirectResource struct{}

func (d *DirectResource) Name() string { return "acquire_direct_resource" }
func (d *DirectResource) Phase() Phase { return Acquisition }
func (d *DirectResource) Cost() Cost   { return Cheap }

func (d *DirectResource) Attempt(ctx context.Context, t *Target) (Result, error) {
	target := ""
	if current := t.Session.CurrentURL(); IsPDF(current) {
		target = current
	} else if t.State.DirectURL != "" {
		target = t.State.DirectURL
	}
	if target == "" {
		return Result{}, nil
	}

	target = forceComplete(t, target)
	t.Logger.Info("acquisition: direct resource", "url", target)
	path, err := t.download(ctx, target, suggestedFromViewer(t.Session.CurrentURL()))
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Terminal: true}, nil
}

// PreferAutomation activates the UI affordance that reveals the document
// (toggling the download panel class), arms the sniffer for a bounded
// window, waits for network quiescence, and asks the sniffer for a
// candidate. Falls back to the Preparation manifest when the sniffer found
// nothing.
type PreferAutomation struct {
	// PanelJS reveals the download affordance. Errors are ignored: when the
	// page was prepared already this is optional but harmless.
	PanelJS string
	// Quiet and Total bound the network-idle wait. Defaults: 500ms / 4s.
	Quiet time.Duration
	Total time.Duration
}

func (p *PreferAutomation) Name() string { return "acquire_prefer_automation" }
func (p *PreferAutomation) Phase() Phase { return Acquisition }
func (p *PreferAutomation) Cost() Cost   { return Normal }

func (p *PreferAutomation) Attempt(ctx context.Context, t *Target) (Result, error) {
	if p.PanelJS != "" {
		if _, err := t.Session.Eval(ctx, p.PanelJS); err != nil {
			t.Logger.Debug("acquisition: panel toggle failed", "error", err)
		}
	}

	if !t.Sniffer.Running() {
		t.Sniffer.Start()
	}
	quiet, total := p.Quiet, p.Total
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}
	if total <= 0 {
		total = 4 * time.Second
	}
	t.Sniffer.WaitQuiet(ctx, quiet, total)

	detected := t.Sniffer.Sniff()
	if detected == "" {
		detected = manifestPick(t)
	}
	if detected == "" {
		t.Logger.Warn("acquisition: nothing detected via sniffer or manifest")
		return Result{}, nil
	}

	detected = forceComplete(t, detected)
	t.Logger.Info("acquisition: downloading detected url", "url", detected)
	path, err := t.download(ctx, detected, suggestedFromViewer(t.Session.CurrentURL()))
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Terminal: true}, nil
}

// PassiveObservation never touches the UI: it only arms the sniffer and
// waits. Used when UI interaction previously caused instability; many
// viewers request the document on load anyway.
type PassiveObservation struct {
	// Quiet and Total bound the network-idle wait. Defaults: 600ms / 6s.
	Quiet time.Duration
	Total time.Duration
}

func (p *PassiveObservation) Name() string { return "acquire_passive_observation" }
func (p *PassiveObservation) Phase() Phase { return Acquisition }
func (p *PassiveObservation) Cost() Cost   { return Cheap }

func (p *PassiveObservation) Attempt(ctx context.Context, t *Target) (Result, error) {
	if !t.Sniffer.Running() {
		t.Sniffer.Start()
	}
	quiet, total := p.Quiet, p.Total
	if quiet <= 0 {
		quiet = 600 * time.Millisecond
	}
	if total <= 0 {
		total = 6 * time.Second
	}
	t.Sniffer.WaitQuiet(ctx, quiet, total)

	detected := t.Sniffer.Sniff()
	if detected == "" {
		t.Logger.Warn("acquisition: sniffer timeout without candidate")
		return Result{}, nil
	}

	detected = forceComplete(t, detected)
	t.Logger.Info("acquisition: passive candidate", "url", detected)
	path, err := t.download(ctx, detected, suggestedFromViewer(t.Session.CurrentURL()))
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Terminal: true}, nil
}

// ForcedManifestFirst reverses PreferAutomation's priority: the Preparation
// manifest is read first (complete document over first page), then
// reconciled against whatever the sniffer independently found, keeping
// whichever looks more authoritative.
type ForcedManifestFirst struct {
	PanelJS string
	Quiet   time.Duration
	Total   time.Duration
}

func (f *ForcedManifestFirst) Name() string { return "acquire_forced_manifest" }
func (f *ForcedManifestFirst) Phase() Phase { return Acquisition }
func (f *ForcedManifestFirst) Cost() Cost   { return Normal }

func (f *ForcedManifestFirst) Attempt(ctx context.Context, t *Target) (Result, error) {
	if f.PanelJS != "" {
		if _, err := t.Session.Eval(ctx, f.PanelJS); err != nil {
			t.Logger.Debug("acquisition: panel toggle failed", "error", err)
		}
	}

	detected := manifestPick(t)

	var sniffed string
	if t.Sniffer.Running() {
		sniffed = t.Sniffer.Sniff()
	} else {
		t.Sniffer.Start()
		quiet, total := f.Quiet, f.Total
		if quiet <= 0 {
			quiet = 500 * time.Millisecond
		}
		if total <= 0 {
			total = 4 * time.Second
		}
		t.Sniffer.WaitQuiet(ctx, quiet, total)
		sniffed = t.Sniffer.Sniff()
	}

	if sniffed != "" {
		sniffed = forceComplete(t, sniffed)
		detected = chooseBetter(detected, sniffed)
	}
	if detected == "" {
		t.Logger.Warn("acquisition: nothing after manifest and sniffer")
		return Result{}, nil
	}

	t.Logger.Info("acquisition: downloading reconciled url", "url", detected)
	path, err := t.download(ctx, detected, suggestedFromViewer(t.Session.CurrentURL()))
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Terminal: true}, nil
}

// EpaperComplete is the specialized fast path for viewers whose toolbar
// exposes a single complete-document anchor: click the PDF affordance, read
// the anchor, download exactly once. Applicable only on matching viewers.
type EpaperComplete struct {
	// ViewerMarker gates applicability against the current URL.
	ViewerMarker string
	// ToolbarJS clicks the toolbar affordance that opens the panel.
	ToolbarJS string
	// AnchorJS returns the complete-document anchor's absolute href, or null.
	AnchorJS string
	// PollTimeout bounds waiting for the anchor to appear. Default: 10s.
	PollTimeout time.Duration
}

func (e *EpaperComplete) Name() string { return "acquire_epaper_complete" }
func (e *EpaperComplete) Phase() Phase { return Acquisition }
func (e *EpaperComplete) Cost() Cost   { return Normal }

func (e *EpaperComplete) Attempt(ctx context.Context, t *Target) (Result, error) {
	if !matchesMarker(t.Session.CurrentURL(), e.ViewerMarker) {
		return Result{}, nil
	}

	if e.ToolbarJS != "" {
		if _, err := t.Session.Eval(ctx, e.ToolbarJS); err != nil {
			t.Logger.Debug("acquisition: toolbar click failed", "error", err)
		}
	}

	timeout := e.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	href, err := pollEvalString(ctx, t, e.AnchorJS, timeout)
	if err != nil {
		return Result{}, err
	}
	if href == "" {
		t.Logger.Debug("acquisition: complete anchor never appeared")
		return Result{}, nil
	}

	target := absolutize(t.Session.CurrentURL(), href)
	t.Logger.Info("acquisition: epaper complete document", "url", target)
	path, err := t.download(ctx, target, suggestedFromViewer(t.Session.CurrentURL()))
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Terminal: true}, nil
}

func matchesMarker(current, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(current), strings.ToLower(marker))
}

// pollEvalString evaluates js on a fixed interval until it yields a
// non-empty string or the deadline passes.
func pollEvalString(ctx context.Context, t *Target, js string, timeout time.Duration) (string, error) {
	const poll = 250 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		raw, err := t.Session.Eval(ctx, js)
		if err != nil {
			return "", fmt.Errorf("strategy: poll eval: %w", err)
		}
		var s string
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(poll):
		}
	}
	return "", nil
}
