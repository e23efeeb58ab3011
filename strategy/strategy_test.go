package strategy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/hazyhaar/kiosko/browser"
	"github.com/hazyhaar/kiosko/sniffer"
)

// fakeSession is an in-memory browser.Session for strategy tests.
type fakeSession struct {
	mu      sync.Mutex
	current string
	html    string
	navErr  error
	navLog  []string

	// evalResults maps a JS substring to the JSON result returned for it.
	evalResults map[string]string
	evalLog     []string

	events []browser.NetworkEvent
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navLog = append(f.navLog, url)
	if f.navErr != nil {
		return f.navErr
	}
	f.current = url
	return nil
}

func (f *fakeSession) CurrentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSession) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evalLog = append(f.evalLog, js)
	for marker, result := range f.evalResults {
		if marker != "" && strings.Contains(js, marker) {
			return json.RawMessage(result), nil
		}
	}
	return json.RawMessage("null"), nil
}

func (f *fakeSession) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, nil
}

func (f *fakeSession) DrainNetwork() []browser.NetworkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}

func (f *fakeSession) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return nil, nil
}

func (f *fakeSession) UserAgent(ctx context.Context) (string, error) {
	return "test-agent", nil
}

func (f *fakeSession) SetDownloadBehavior(ctx context.Context, allow bool, dir string) error {
	return nil
}

func (f *fakeSession) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTarget(sess *fakeSession, dir string) *Target {
	return &Target{
		StartURL:    sess.current,
		Session:     sess,
		Sniffer:     sniffer.New(sess, sniffer.WithLogger(testLogger())),
		DownloadDir: dir,
		Logger:      testLogger(),
	}
}
