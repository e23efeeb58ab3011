package sniffer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/kiosko/browser"
)

// fakeSource queues network events for the sniffer to drain.
type fakeSource struct {
	mu     sync.Mutex
	events []browser.NetworkEvent
}

func (f *fakeSource) push(e ...browser.NetworkEvent) {
	f.mu.Lock()
	f.events = append(f.events, e...)
	f.mu.Unlock()
}

func (f *fakeSource) DrainNetwork() []browser.NetworkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSniffer(src *fakeSource, now *time.Time) *Sniffer {
	return New(src,
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return *now }),
	)
}

func reqEvent(tsMs int64, url string) browser.NetworkEvent {
	return browser.NetworkEvent{Method: "Network.requestWillBeSent", URL: url, TimestampMs: tsMs}
}

func TestMarkerBeatsGenericRegardlessOfRecency(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(100)
	s := newTestSniffer(src, &now)

	// Generic candidate is newer, marker candidate is older.
	src.push(
		reqEvent(100, "https://cdn/a.pdf"),
		reqEvent(50, "https://store/original.file?sig=x"),
	)
	s.Drain()

	if got, want := s.PickBest(), "https://store/original.file?sig=x"; got != want {
		t.Errorf("PickBest: got %q, want %q", got, want)
	}
}

func TestGenericOnlyMostRecentWins(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(1000)
	s := newTestSniffer(src, &now)

	src.push(
		reqEvent(100, "https://cdn/old.pdf"),
		reqEvent(900, "https://cdn/new.pdf"),
		reqEvent(500, "https://cdn/mid.pdf"),
	)
	s.Drain()

	if got, want := s.PickBest(), "https://cdn/new.pdf"; got != want {
		t.Errorf("PickBest: got %q, want %q", got, want)
	}
}

func TestRecencyWindowPrunesOldCandidates(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(1000)
	s := newTestSniffer(src, &now)

	src.push(reqEvent(1000, "https://cdn/a.pdf"))
	s.Drain()
	if got := s.PickBest(); got == "" {
		t.Fatal("candidate should be present inside the window")
	}

	// Advance the clock past the 8s window and drain again.
	now = time.UnixMilli(1000 + 9_000)
	s.Drain()
	if got := s.PickBest(); got != "" {
		t.Errorf("PickBest after window: got %q, want empty", got)
	}
}

func TestDuplicateURLsSuppressed(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(100)
	s := newTestSniffer(src, &now)

	src.push(
		reqEvent(10, "https://cdn/a.pdf"),
		reqEvent(20, "https://cdn/a.pdf"),
		reqEvent(30, "https://cdn/a.pdf"),
	)
	s.Drain()

	s.mu.Lock()
	n := len(s.candidates)
	s.mu.Unlock()
	if n != 1 {
		t.Errorf("candidates: got %d, want 1", n)
	}
}

func TestTrackerHostsIgnored(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(100)
	s := newTestSniffer(src, &now)

	src.push(reqEvent(10, "https://ads.doubleclick.net/banner.pdf"))
	s.Drain()

	if got := s.PickBest(); got != "" {
		t.Errorf("tracker host should be ignored, got %q", got)
	}
}

func TestResponseMimeTypeQualifies(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(100)
	s := newTestSniffer(src, &now)

	// No .pdf suffix, but the declared content type matches.
	src.push(browser.NetworkEvent{
		Method:      "Network.responseReceived",
		URL:         "https://cdn/document?id=42",
		MimeType:    "application/pdf",
		TimestampMs: 10,
	})
	s.Drain()

	if got, want := s.PickBest(), "https://cdn/document?id=42"; got != want {
		t.Errorf("PickBest: got %q, want %q", got, want)
	}
}

func TestStoppedSnifferDropsNothingIn(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(100)
	s := newTestSniffer(src, &now)
	s.Stop()

	src.push(reqEvent(10, "https://cdn/a.pdf"))
	s.Drain()
	if got := s.PickBest(); got != "" {
		t.Errorf("stopped sniffer should not accumulate, got %q", got)
	}

	s.Start()
	s.Drain()
	if got := s.PickBest(); got == "" {
		t.Error("restarted sniffer should drain queued events")
	}
}

func TestWaitForReturnsOnTimeout(t *testing.T) {
	src := &fakeSource{}
	s := New(src, WithLogger(quietLogger()))

	timeout := 120 * time.Millisecond
	poll := 20 * time.Millisecond
	start := time.Now()
	got := s.WaitFor(context.Background(), timeout, poll)
	elapsed := time.Since(start)

	if got != "" {
		t.Errorf("WaitFor on empty source: got %q, want empty", got)
	}
	if elapsed > timeout+3*poll {
		t.Errorf("WaitFor overshot deadline: %v > %v", elapsed, timeout+3*poll)
	}
}

func TestWaitForReturnsOnFirstCandidate(t *testing.T) {
	src := &fakeSource{}
	s := New(src, WithLogger(quietLogger()))

	go func() {
		time.Sleep(30 * time.Millisecond)
		src.push(reqEvent(time.Now().UnixMilli(), "https://cdn/a.pdf"))
	}()

	got := s.WaitFor(context.Background(), 2*time.Second, 10*time.Millisecond)
	if want := "https://cdn/a.pdf"; got != want {
		t.Errorf("WaitFor: got %q, want %q", got, want)
	}
}

func TestWaitForHonorsCancellation(t *testing.T) {
	src := &fakeSource{}
	s := New(src, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	got := s.WaitFor(ctx, 5*time.Second, 10*time.Millisecond)
	if got != "" {
		t.Errorf("cancelled WaitFor: got %q, want empty", got)
	}
	if time.Since(start) > time.Second {
		t.Error("WaitFor did not return promptly after cancellation")
	}
}

func TestWaitQuietReachesQuiescence(t *testing.T) {
	src := &fakeSource{}
	s := New(src, WithLogger(quietLogger()))

	src.push(reqEvent(time.Now().UnixMilli(), "https://site/page.js"))
	if !s.WaitQuiet(context.Background(), 50*time.Millisecond, time.Second) {
		t.Error("WaitQuiet should reach quiescence once events stop")
	}
}

func TestResetClearsState(t *testing.T) {
	src := &fakeSource{}
	now := time.UnixMilli(100)
	s := newTestSniffer(src, &now)

	src.push(reqEvent(10, "https://cdn/a.pdf"))
	s.Drain()
	s.Reset()

	if got := s.PickBest(); got != "" {
		t.Errorf("after Reset: got %q, want empty", got)
	}
	if got := s.LastEventMillis(); got != 0 {
		t.Errorf("after Reset: last event %d, want 0", got)
	}
}
