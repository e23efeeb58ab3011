// CLAUDE:SUMMARY Orchestrates one shared browser session across targets: phases, ledger, batch and home-page modes.
// Package pipeline drives edition targets through the Discovery →
// Preparation → Acquisition strategy chain using one shared browser
// session. One target's unrecoverable failure is caught and logged;
// processing continues with the next target.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hazyhaar/kiosko/browser"
	"github.com/hazyhaar/kiosko/fetch"
	"github.com/hazyhaar/kiosko/ledger"
	"github.com/hazyhaar/kiosko/sniffer"
	"github.com/hazyhaar/kiosko/strategy"
)

// Result is the per-target outcome of a batch run. Path is empty when the
// target produced no file; Err explains why when known.
type Result struct {
	URL  string
	Path string
	Err  error
}

// Pipeline owns the browser manager and the per-policy strategy chains.
type Pipeline struct {
	cfg    *Config
	mgr    *browser.Manager
	rec    *ledger.Ledger
	logger *slog.Logger

	// newSession is swappable for tests.
	newSession func(ctx context.Context) (browser.Session, error)
}

// New creates a Pipeline from configuration.
func New(cfg *Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headless:         cfg.Browser.Headless,
		UserAgent:        cfg.Browser.UserAgent,
		Locale:           cfg.Browser.Locale,
		Timezone:         cfg.Browser.Timezone,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})

	p := &Pipeline{cfg: cfg, mgr: mgr, logger: logger}
	p.newSession = mgr.NewSession
	return p
}

// Start launches the browser and opens the ledger.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := os.MkdirAll(p.cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create download dir: %w", err)
	}
	if err := p.mgr.Start(ctx); err != nil {
		return err
	}
	if p.cfg.LedgerPath != "" {
		rec, err := ledger.Open(p.cfg.LedgerPath)
		if err != nil {
			return err
		}
		p.rec = rec
	}
	return nil
}

// Close shuts down the browser and the ledger.
func (p *Pipeline) Close() error {
	var errs []error
	if p.rec != nil {
		errs = append(errs, p.rec.Close())
	}
	errs = append(errs, p.mgr.Close())
	return errors.Join(errs...)
}

// Run drives a single target through the phase sequencer and returns the
// downloaded file's absolute path. strategy.ErrNoResult means every
// acquisition strategy came up empty.
func (p *Pipeline) Run(ctx context.Context, startURL string) (string, error) {
	sess, err := p.newSession(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	return p.runTarget(ctx, sess, startURL)
}

// RunBatch drives each URL through the same shared browser, one at a time.
// Results preserve input order; a failed target never aborts the batch.
func (p *Pipeline) RunBatch(ctx context.Context, urls []string) []Result {
	results := make([]Result, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			results = append(results, Result{URL: u, Err: ctx.Err()})
			continue
		}
		p.logger.Info("pipeline: batch target", "url", u)
		path, err := p.Run(ctx, u)
		if err != nil {
			p.logger.Error("pipeline: target failed", "url", u, "error", err)
		}
		results = append(results, Result{URL: u, Path: path, Err: err})
	}
	return results
}

// RunHome loads a home page listing multiple editions, enumerates their
// viewer links (filtering known non-content entries by label or URL
// keyword), and feeds each into the per-target pipeline.
func (p *Pipeline) RunHome(ctx context.Context, homeURL string) ([]Result, error) {
	sess, err := p.newSession(ctx)
	if err != nil {
		return nil, err
	}

	if err := sess.Navigate(ctx, homeURL); err != nil {
		sess.Close()
		return nil, fmt.Errorf("pipeline: load home: %w", err)
	}
	html, err := sess.HTML(ctx)
	sess.Close()
	if err != nil {
		return nil, fmt.Errorf("pipeline: read home: %w", err)
	}

	editions := collectEditions(html, homeURL, &p.cfg.Site)
	if len(editions) == 0 {
		p.logger.Warn("pipeline: no editions on home page", "url", homeURL)
		return nil, nil
	}
	p.logger.Info("pipeline: editions found", "count", len(editions))

	urls := make([]string, len(editions))
	for i, e := range editions {
		urls[i] = e.URL
	}
	return p.RunBatch(ctx, urls), nil
}

func (p *Pipeline) runTarget(ctx context.Context, sess browser.Session, startURL string) (string, error) {
	allowNative := p.cfg.Policy != PolicyForceFetch
	if err := sess.SetDownloadBehavior(ctx, allowNative, p.cfg.DownloadDir); err != nil {
		p.logger.Warn("pipeline: download behavior", "error", err)
	}

	if err := sess.Navigate(ctx, startURL); err != nil {
		return "", fmt.Errorf("pipeline: load target: %w", err)
	}

	sniff := sniffer.New(sess, sniffer.WithLogger(p.logger))
	target := &strategy.Target{
		StartURL:     startURL,
		Session:      sess,
		Sniffer:      sniff,
		DownloadDir:  p.cfg.DownloadDir,
		FetchTimeout: p.cfg.FetchTimeout,
		Logger:       p.logger,
	}

	seq := p.sequencer()
	path, err := seq.Run(ctx, target)
	if err != nil {
		return "", err
	}

	if p.cfg.VerifyPDF {
		if err := fetch.VerifyPDF(path); err != nil {
			return "", err
		}
	}

	if p.rec != nil {
		size := int64(0)
		if st, statErr := os.Stat(path); statErr == nil {
			size = st.Size()
		}
		if _, err := p.rec.Insert(ctx, ledger.Record{
			TargetURL: startURL,
			SourceURL: sess.CurrentURL(),
			Path:      path,
			Size:      size,
		}); err != nil {
			p.logger.Warn("pipeline: ledger insert failed", "error", err)
		}
	}

	return path, nil
}

// sequencer builds the phase registry for the configured policy. The
// acquisition order is the documented fallback chain: the specialized
// complete-document fast path (gated by viewer marker), the direct-resource
// check, the policy's preferred channel, then passive observation.
func (p *Pipeline) sequencer() *strategy.Sequencer {
	s := &p.cfg.Site

	panelJS := fmt.Sprintf(`(function(){
  var tab = document.querySelector(%q);
  if (tab && !tab.classList.contains('active')) tab.classList.add('active');
})()`, s.ManifestWrapperSelector)

	toolbarJS := fmt.Sprintf(`(function(){
  var el = document.querySelector(%q);
  if (el) el.click();
})()`, s.EpaperToolbarSelector)

	anchorJS := fmt.Sprintf(`(function(){
  var a = document.querySelector(%q);
  return a ? a.href : null;
})()`, s.EpaperAnchorSelector)

	strategies := []strategy.Strategy{
		&strategy.ViewerLink{Selector: s.ViewerSelector, ViewerMarkers: s.ViewerMarkers},
		&strategy.DirectLink{},
		&strategy.EmbedViewer{IframeSelector: s.EmbedIframeSelector, EmbedMarker: s.EmbedMarker},
		&strategy.ExtractManifest{
			WrapperSelector: s.ManifestWrapperSelector,
			AnchorSelector:  s.ManifestAnchorSelector,
		},
		&strategy.EpaperComplete{
			ViewerMarker: s.EpaperViewerMarker,
			ToolbarJS:    toolbarJS,
			AnchorJS:     anchorJS,
		},
		&strategy.DirectResource{},
	}

	if p.cfg.Policy == PolicyForceFetch {
		strategies = append(strategies, &strategy.ForcedManifestFirst{PanelJS: panelJS})
	} else {
		strategies = append(strategies, &strategy.PreferAutomation{PanelJS: panelJS})
	}
	strategies = append(strategies, &strategy.PassiveObservation{})

	return strategy.NewSequencer(p.logger, strategies...)
}
