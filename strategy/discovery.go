package strategy

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// absolutize resolves href against base, returning href unchanged when
// either side fails to parse.
func absolutize(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

func parseDOM(ctx context.Context, t *Target) (*goquery.Document, error) {
	html, err := t.Session.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ViewerLink navigates from an index/listing context to a concrete viewer
// by following the first deep link matching Selector. A no-op when the
// session is already on a viewer.
type ViewerLink struct {
	// Selector matches viewer anchors, e.g. `.magazine-publications a[href*="viewer.aspx"]`.
	Selector string
	// ViewerMarkers are URL substrings meaning "already on a viewer".
	ViewerMarkers []string
}

func (v *ViewerLink) Name() string { return "discover_viewer_link" }
func (v *ViewerLink) Phase() Phase { return Discovery }
func (v *ViewerLink) Cost() Cost   { return Cheap }

func (v *ViewerLink) Attempt(ctx context.Context, t *Target) (Result, error) {
	current := strings.ToLower(t.Session.CurrentURL())
	for _, m := range v.ViewerMarkers {
		if strings.Contains(current, strings.ToLower(m)) {
			t.Logger.Debug("discovery: already on a viewer")
			return Result{}, nil
		}
	}

	doc, err := parseDOM(ctx, t)
	if err != nil {
		return Result{}, err
	}

	href, ok := doc.Find(v.Selector).First().Attr("href")
	if !ok || href == "" {
		t.Logger.Debug("discovery: no viewer link in listing", "selector", v.Selector)
		return Result{}, nil
	}

	full := absolutize(t.Session.CurrentURL(), href)
	t.Logger.Info("discovery: viewer link found", "url", full)
	if err := t.Session.Navigate(ctx, full); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// defaultDirectSelectors find anchors that already point at the document.
var defaultDirectSelectors = []string{
	`a[href$=".pdf"]`,
	`a[href*=".pdf"]`,
	`a[download][href]`,
}

// DirectLink checks whether the document is already exposed as a direct
// downloadable link in the DOM. It records the URL for the Acquisition
// phase without downloading, then reports terminal.
type DirectLink struct {
	Selectors []string
}

func (d *DirectLink) Name() string { return "discover_direct_link" }
func (d *DirectLink) Phase() Phase { return Discovery }
func (d *DirectLink) Cost() Cost   { return Cheap }

func (d *DirectLink) Attempt(ctx context.Context, t *Target) (Result, error) {
	selectors := d.Selectors
	if len(selectors) == 0 {
		selectors = defaultDirectSelectors
	}

	doc, err := parseDOM(ctx, t)
	if err != nil {
		return Result{}, err
	}

	for _, sel := range selectors {
		href, ok := doc.Find(sel).First().Attr("href")
		if !ok || href == "" {
			continue
		}
		full := absolutize(t.Session.CurrentURL(), href)
		if !IsPDF(full) {
			continue
		}
		t.Logger.Info("discovery: direct document link in DOM", "url", full)
		t.State.DirectURL = full
		return Result{Terminal: true}, nil
	}

	t.Logger.Debug("discovery: no direct link in DOM")
	return Result{}, nil
}
