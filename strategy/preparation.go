package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EmbedViewer moves the session onto the viewer's embed page when the
// edition is served through an iframe (issuu-style). Navigating to the
// embed URL directly puts its network traffic in the main session where the
// sniffer can see it.
type EmbedViewer struct {
	// IframeSelector matches the embed iframe, e.g.
	// `iframe[src*="issuu.com/embed.html"]`.
	IframeSelector string
	// EmbedMarker is the URL substring meaning "already on the embed".
	EmbedMarker string
}

func (e *EmbedViewer) Name() string { return "prepare_embed_viewer" }
func (e *EmbedViewer) Phase() Phase { return Preparation }
func (e *EmbedViewer) Cost() Cost   { return Cheap }

func (e *EmbedViewer) Attempt(ctx context.Context, t *Target) (Result, error) {
	if e.EmbedMarker != "" &&
		strings.Contains(strings.ToLower(t.Session.CurrentURL()), strings.ToLower(e.EmbedMarker)) {
		t.Logger.Debug("preparation: already on embed")
		return Result{Terminal: true}, nil
	}

	doc, err := parseDOM(ctx, t)
	if err != nil {
		return Result{}, err
	}

	src, ok := doc.Find(e.IframeSelector).First().Attr("src")
	if !ok || src == "" {
		t.Logger.Debug("preparation: no embed iframe", "selector", e.IframeSelector)
		return Result{}, nil
	}

	embed := absolutize(t.Session.CurrentURL(), src)
	t.Logger.Info("preparation: navigating to embed", "url", embed)
	if err := t.Session.Navigate(ctx, embed); err != nil {
		return Result{}, err
	}
	return Result{Terminal: true}, nil
}

// ExtractManifest collects the viewer's per-page and complete-document
// download anchors into the target's manifest side channel. It never
// fetches; Acquisition decides what to do with the entries.
type ExtractManifest struct {
	// WrapperSelector scopes the anchor search, e.g. `.magazine-pdf-wrapper`.
	WrapperSelector string
	// AnchorSelector matches download anchors inside the wrapper, e.g.
	// `a.complete-download-buttom`.
	AnchorSelector string
}

func (m *ExtractManifest) Name() string { return "prepare_extract_manifest" }
func (m *ExtractManifest) Phase() Phase { return Preparation }
func (m *ExtractManifest) Cost() Cost   { return Cheap }

func (m *ExtractManifest) Attempt(ctx context.Context, t *Target) (Result, error) {
	// The collected manifest is mirrored to window.__pdfManifest so later
	// JS-side affordances can read it too.
	js := fmt.Sprintf(`(function(){
  var wrap = document.querySelector(%q);
  if (!wrap) return null;
  var out = { all: [], complete: null, firstPage: null };
  Array.from(wrap.querySelectorAll(%q)).forEach(function(a){
    var p = a.getAttribute('data-pagenum') || '';
    var entry = { href: a.getAttribute('href') || '', abs: a.href, pagenum: p };
    out.all.push(entry);
    if (p.toLowerCase() === 'complete') out.complete = entry;
    if (p === '1' && !out.firstPage) out.firstPage = entry;
  });
  window.__pdfManifest = out;
  return out;
})()`, m.WrapperSelector, m.AnchorSelector)

	raw, err := t.Session.Eval(ctx, js)
	if err != nil {
		return Result{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		t.Logger.Debug("preparation: no manifest block in viewer")
		return Result{}, nil
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return Result{}, fmt.Errorf("strategy: decode manifest: %w", err)
	}
	t.State.Manifest = &manifest

	if manifest.Complete != nil {
		t.Logger.Info("preparation: complete document exposed in manifest",
			"url", manifest.Complete.URL(), "pages", len(manifest.All))
		return Result{Terminal: true}, nil
	}
	t.Logger.Debug("preparation: manifest without complete entry", "pages", len(manifest.All))
	return Result{}, nil
}
