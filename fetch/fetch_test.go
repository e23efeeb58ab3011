package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, dir string) *Client {
	t.Helper()
	c, err := New(Options{
		DownloadDir: dir,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestDownloadPublishesAtomically(t *testing.T) {
	const body = "%PDF-1.4 edicion completa"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, dir)

	path, err := c.Download(context.Background(), srv.URL+"/pdf_pags/482.pdf", Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "482.pdf" {
		t.Errorf("filename: got %q, want 482.pdf", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != body {
		t.Errorf("content: got %q, want %q", data, body)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Errorf("temporary file still present after publish")
	}
}

func TestDownloadSameSizeIsNoOp(t *testing.T) {
	const body = "%PDF-1.4 ya descargada"
	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	final := filepath.Join(dir, "482.pdf")
	if err := os.WriteFile(final, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(final, past, past); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(final)
	if err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, dir)
	path, err := c.Download(context.Background(), srv.URL+"/pdf_pags/482.pdf", Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if path != final {
		t.Errorf("path: got %q, want %q", path, final)
	}
	if gets.Load() != 0 {
		t.Errorf("server saw %d GETs, want 0 for a satisfied file", gets.Load())
	}
	after, err := os.Stat(final)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("modification time changed: %v -> %v", before.ModTime(), after.ModTime())
	}
}

func TestDownloadSizeMismatchRefetches(t *testing.T) {
	const body = "%PDF-1.4 nueva version"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	final := filepath.Join(dir, "482.pdf")
	if err := os.WriteFile(final, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, dir)
	path, err := c.Download(context.Background(), srv.URL+"/pdf_pags/482.pdf", Meta{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != body {
		t.Errorf("content: got %q, want the refreshed body", data)
	}
}

func TestDownloadInterruptedTransferLeavesNoFinalFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		// Announce more bytes than are sent, then cut the connection so the
		// client fails mid-stream.
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("%PDF-1.4 trunca"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, dir)

	_, err := c.Download(context.Background(), srv.URL+"/pdf_pags/482.pdf", Meta{})
	if err == nil {
		t.Fatal("expected an error from the truncated transfer")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "482.pdf")); !os.IsNotExist(statErr) {
		t.Errorf("final file exists after a failed transfer")
	}
}

func TestDownloadUsesGetDisposition(t *testing.T) {
	const body = "%PDF-1.4 nombrada"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Disposition", `attachment; filename="edicion final.pdf"`)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, dir)

	path, err := c.Download(context.Background(), srv.URL+"/download", Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "edicion final.pdf" {
		t.Errorf("filename: got %q, want the header-provided name", filepath.Base(path))
	}
}

func TestDownloadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, dir)

	if _, err := c.Download(context.Background(), srv.URL+"/gone.pdf", Meta{}); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if _, err := os.Stat(filepath.Join(dir, "gone.pdf")); !os.IsNotExist(err) {
		t.Errorf("file was written despite the error status")
	}
}
