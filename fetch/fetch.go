// CLAUDE:SUMMARY Session-cloning HTTP fetcher: resty client carrying browser cookies/UA, idempotent atomic downloads.
// Package fetch performs the actual byte transfer once a strategy has a
// resource URL. It clones the live browser session (user agent, cookies,
// referer) into a resty client so server-side session checks pass, checks
// remote size against any existing local file, and publishes downloads
// atomically (temp name, then rename) so a crash never leaves a corrupt
// final file.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/kiosko/browser"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options configures a Client.
type Options struct {
	// DownloadDir receives finished files. Created if absent.
	DownloadDir string

	// UserAgent sent on every request. Defaults to a desktop Chrome UA.
	UserAgent string

	// Referer sent on every request when non-empty.
	Referer string

	// Cookies seeds the client's jar, usually cloned from the browser.
	Cookies []browser.Cookie

	// Timeout bounds a whole transfer. Default: 3m.
	Timeout time.Duration

	// RetryCount is the transient-error retry ceiling. Default: 3.
	// Resty backs off exponentially with jitter between attempts.
	RetryCount int

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Minute
	}
	if o.RetryCount <= 0 {
		o.RetryCount = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client downloads resources with a browser-equivalent HTTP session.
// Build one per download: cookies rotate, so session state is never cached
// across downloads.
type Client struct {
	http   *resty.Client
	dir    string
	logger *slog.Logger
}

// New creates a Client from explicit session material.
func New(opts Options) (*Client, error) {
	opts.defaults()

	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("fetch: create download dir: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("fetch: cookie jar: %w", err)
	}

	c := resty.New()
	c.SetCookieJar(jar)
	c.SetTimeout(opts.Timeout)
	c.SetRetryCount(opts.RetryCount)
	c.SetRetryWaitTime(time.Second)
	c.SetRetryMaxWaitTime(8 * time.Second)
	c.SetHeader("User-Agent", opts.UserAgent)
	c.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	c.SetHeader("Accept-Language", "es-419,es;q=0.6")
	if opts.Referer != "" {
		c.SetHeader("Referer", opts.Referer)
	}
	c.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(c.GetClient().Transport)

	seedJar(jar, opts.Cookies)

	return &Client{http: c, dir: opts.DownloadDir, logger: opts.Logger}, nil
}

// FromSession clones the live browser session into a Client. Called at the
// moment of each download, never reused across downloads.
func FromSession(ctx context.Context, sess browser.Session, opts Options) (*Client, error) {
	opts.defaults()
	ua, err := sess.UserAgent(ctx)
	if err != nil || ua == "" {
		ua = defaultUserAgent
	}
	cookies, err := sess.Cookies(ctx)
	if err != nil {
		// A jarless session still succeeds against most hosts.
		opts.Logger.Warn("fetch: cookie clone failed", "error", err)
		cookies = nil
	}
	opts.UserAgent = ua
	opts.Cookies = cookies
	return New(opts)
}

func seedJar(jar http.CookieJar, cookies []browser.Cookie) {
	byHost := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		byHost[host] = append(byHost[host], &http.Cookie{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: path,
		})
	}
	for host, cs := range byHost {
		u := &url.URL{Scheme: "https", Host: host, Path: "/"}
		jar.SetCookies(u, cs)
	}
}

// Meta carries fallback naming material for a download.
type Meta struct {
	// SuggestedName is used when neither Content-Disposition nor the URL
	// path yields a usable filename. Sanitized before use.
	SuggestedName string
}

// Download fetches rawURL into the download directory and returns the final
// absolute path.
//
// A metadata-only request reads the expected size first: a same-named local
// file with identical size is treated as already satisfied and returned
// untouched. Otherwise the body streams to "<name>.part" and is renamed to
// the final name only after the transfer completed fully.
func (c *Client) Download(ctx context.Context, rawURL string, meta Meta) (string, error) {
	head, err := c.http.R().SetContext(ctx).Head(rawURL)
	var remoteSize int64
	var disposition string
	if err != nil {
		c.logger.Debug("fetch: head failed, downloading blind", "url", rawURL, "error", err)
	} else {
		remoteSize, _ = strconv.ParseInt(head.Header().Get("Content-Length"), 10, 64)
		disposition = head.Header().Get("Content-Disposition")
	}

	name := resolveName(disposition, rawURL, meta.SuggestedName)
	final := filepath.Join(c.dir, name)

	if remoteSize > 0 {
		if st, err := os.Stat(final); err == nil && st.Size() == remoteSize {
			c.logger.Info("fetch: already satisfied", "path", final, "size", remoteSize)
			return final, nil
		}
	}

	resp, err := c.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: get %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("fetch: get %s: status %d", rawURL, resp.StatusCode())
	}

	// Content-Disposition may only appear on the GET.
	if disposition == "" {
		if cd := resp.Header().Get("Content-Disposition"); cd != "" {
			name = resolveName(cd, rawURL, meta.SuggestedName)
			final = filepath.Join(c.dir, name)
		}
	}

	tmp := final + ".part"
	if err := streamTo(tmp, body); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("fetch: stream %s: %w", rawURL, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("fetch: publish %s: %w", final, err)
	}

	c.logger.Info("fetch: downloaded", "url", rawURL, "path", final)
	return final, nil
}

func streamTo(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
