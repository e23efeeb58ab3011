package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// rodSession implements Session over a Rod page.
type rodSession struct {
	browser *rod.Browser
	page    *rod.Page
	cfg     Config
	log     *netLog
}

// armNetworkLog enables the CDP Network domain with caching off and
// subscribes to request/response events, feeding the drainable buffer.
func (s *rodSession) armNetworkLog() error {
	if err := (proto.NetworkEnable{}).Call(s.page); err != nil {
		return fmt.Errorf("network enable: %w", err)
	}
	// Cache off so repeated viewer loads still produce events.
	if err := (proto.NetworkSetCacheDisabled{CacheDisabled: true}).Call(s.page); err != nil {
		s.cfg.Logger.Debug("browser: cache disable failed", "error", err)
	}

	go s.page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			ts := time.Now().UnixMilli()
			if e.WallTime > 0 {
				ts = e.WallTime.Time().UnixMilli()
			}
			s.log.append(NetworkEvent{
				Method:      "Network.requestWillBeSent",
				URL:         e.Request.URL,
				TimestampMs: ts,
			})
		},
		func(e *proto.NetworkResponseReceived) {
			s.log.append(NetworkEvent{
				Method:      "Network.responseReceived",
				URL:         e.Response.URL,
				MimeType:    e.Response.MIMEType,
				TimestampMs: time.Now().UnixMilli(),
			})
		},
	)()
	return nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	var last error
	for i := 0; i < s.cfg.NavigateRetries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
		err := s.navigateOnce(attemptCtx, url)
		cancel()
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return fmt.Errorf("browser: navigate %s: %w", url, ctx.Err())
		}
		// Exponential backoff with jitter before the next attempt.
		sleep := time.Duration(1<<i)*time.Second + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
		s.cfg.Logger.Warn("browser: navigate retry",
			"url", url, "attempt", i+1, "backoff", sleep, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("browser: navigate %s: %w", url, ctx.Err())
		case <-time.After(sleep):
		}
	}
	return fmt.Errorf("browser: navigate %s: %w", url, last)
}

func (s *rodSession) navigateOnce(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		// Eager semantics: a load-event timeout on a viewer that keeps
		// streaming assets is not fatal as long as the body exists.
		if _, htmlErr := s.HTML(ctx); htmlErr != nil {
			return err
		}
		s.cfg.Logger.Debug("browser: load event timeout, body present", "url", url)
	}
	return nil
}

func (s *rodSession) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *rodSession) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	data, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil, fmt.Errorf("browser: encode eval result: %w", err)
	}
	return data, nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get html: %w", err)
	}
	return res.Value.Str(), nil
}

func (s *rodSession) DrainNetwork() []NetworkEvent {
	return s.log.drain()
}

func (s *rodSession) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := s.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: cookies: %w", err)
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: path})
	}
	return out, nil
}

func (s *rodSession) UserAgent(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => navigator.userAgent`)
	if err != nil {
		return "", fmt.Errorf("browser: user agent: %w", err)
	}
	return res.Value.Str(), nil
}

func (s *rodSession) SetDownloadBehavior(ctx context.Context, allow bool, dir string) error {
	req := proto.BrowserSetDownloadBehavior{
		Behavior: proto.BrowserSetDownloadBehaviorBehaviorDeny,
	}
	if allow {
		req.Behavior = proto.BrowserSetDownloadBehaviorBehaviorAllow
		req.DownloadPath = dir
	}
	if err := req.Call(s.browser); err != nil {
		return fmt.Errorf("browser: set download behavior: %w", err)
	}
	return nil
}

func (s *rodSession) Close() error {
	if s.page != nil {
		return s.page.Close()
	}
	return nil
}
