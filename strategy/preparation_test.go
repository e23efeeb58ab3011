package strategy

import (
	"context"
	"testing"
)

func TestEmbedViewerNavigatesToIframe(t *testing.T) {
	sess := &fakeSession{
		current: "https://elnuevodiario.example.com/edicion",
		html:    `<iframe src="//e.issuu.com/embed.html?d=ed20260826"></iframe>`,
	}
	target := newTestTarget(sess, t.TempDir())

	e := &EmbedViewer{
		IframeSelector: `iframe[src*="issuu.com/embed.html"], iframe[src*="e.issuu.com/embed.html"]`,
		EmbedMarker:    "issuu.com/embed.html",
	}
	res, err := e.Attempt(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Terminal {
		t.Error("reaching the embed should be terminal for preparation")
	}
	if want := "https://e.issuu.com/embed.html?d=ed20260826"; sess.CurrentURL() != want {
		t.Errorf("navigated to %q, want %q", sess.CurrentURL(), want)
	}
}

func TestEmbedViewerAlreadyOnEmbed(t *testing.T) {
	sess := &fakeSession{current: "https://e.issuu.com/embed.html?d=x"}
	target := newTestTarget(sess, t.TempDir())

	e := &EmbedViewer{IframeSelector: "iframe", EmbedMarker: "issuu.com/embed.html"}
	res, err := e.Attempt(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Terminal {
		t.Error("already on embed should be terminal")
	}
	if len(sess.navLog) != 0 {
		t.Errorf("navigated %v, want no navigation", sess.navLog)
	}
}

func TestExtractManifestFillsSideChannel(t *testing.T) {
	sess := &fakeSession{
		current: "https://epaper.example.com/viewer.aspx?publication=diariolibre",
		evalResults: map[string]string{
			"__pdfManifest": `{
				"all": [
					{"href": "/pdf_pags/pdf_1.pdf", "abs": "https://epaper.example.com/pdf_pags/pdf_1.pdf", "pagenum": "1"},
					{"href": "/pdf_pags/482.pdf", "abs": "https://epaper.example.com/pdf_pags/482.pdf", "pagenum": "complete"}
				],
				"complete": {"href": "/pdf_pags/482.pdf", "abs": "https://epaper.example.com/pdf_pags/482.pdf", "pagenum": "complete"},
				"firstPage": {"href": "/pdf_pags/pdf_1.pdf", "abs": "https://epaper.example.com/pdf_pags/pdf_1.pdf", "pagenum": "1"}
			}`,
		},
	}
	target := newTestTarget(sess, t.TempDir())

	m := &ExtractManifest{WrapperSelector: ".magazine-pdf-wrapper", AnchorSelector: "a.complete-download-buttom"}
	res, err := m.Attempt(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Terminal {
		t.Error("manifest with complete entry should be terminal")
	}

	got := target.State.Manifest
	if got == nil {
		t.Fatal("manifest not stored in state")
	}
	if len(got.All) != 2 {
		t.Errorf("All: got %d entries, want 2", len(got.All))
	}
	if want := "https://epaper.example.com/pdf_pags/482.pdf"; got.Complete.URL() != want {
		t.Errorf("Complete: got %q, want %q", got.Complete.URL(), want)
	}
	if want := "https://epaper.example.com/pdf_pags/pdf_1.pdf"; got.FirstPage.URL() != want {
		t.Errorf("FirstPage: got %q, want %q", got.FirstPage.URL(), want)
	}
}

func TestExtractManifestMissingBlock(t *testing.T) {
	sess := &fakeSession{current: "https://epaper.example.com/viewer.aspx"}
	target := newTestTarget(sess, t.TempDir())

	res, err := (&ExtractManifest{WrapperSelector: ".x", AnchorSelector: "a"}).Attempt(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if res.Terminal || target.State.Manifest != nil {
		t.Errorf("missing block: got %+v manifest=%v, want clean miss", res, target.State.Manifest)
	}
}
