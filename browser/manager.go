// CLAUDE:SUMMARY Manages Chrome lifecycle for the acquisition pipeline: launch, stealth, resource blocking, cleanup.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless controls whether Chrome runs without a window. Default: true.
	Headless *bool

	// UserAgent overrides the browser user agent. Empty keeps Chrome's own.
	UserAgent string

	// ResourceBlocking lists resource types to block (images, fonts, media,
	// stylesheets). Viewers load faster and the network log stays quieter.
	ResourceBlocking []string

	// Locale sets the Accept-Language / JS locale, e.g. "es-419".
	Locale string

	// Timezone sets the timezone override, e.g. "America/Santo_Domingo".
	Timezone string

	// NavigateTimeout bounds a single navigation attempt. Default: 30s.
	NavigateTimeout time.Duration

	// NavigateRetries is the attempt ceiling for Navigate. Default: 3.
	NavigateRetries int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Headless == nil {
		t := true
		c.Headless = &t
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.NavigateRetries <= 0 {
		c.NavigateRetries = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process and hands out Sessions bound to it.
// Sessions are processed strictly sequentially by the pipeline, so the
// manager never holds more than one live page.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(*m.cfg.Headless)

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")
		l = l.Set("mute-audio")
		l = l.Set("no-first-run")
		l = l.Set("no-default-browser-check")
		l = l.Set("disable-background-networking")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "headless", *m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	m.browser = b
	return nil
}

// NewSession creates a fresh stealth page with network logging armed.
// The caller owns the session and must Close it before requesting another.
func (m *Manager) NewSession(ctx context.Context) (Session, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return nil, fmt.Errorf("browser: manager not started")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create stealth page: %w", err)
	}

	if m.cfg.UserAgent != "" {
		override := &proto.NetworkSetUserAgentOverride{UserAgent: m.cfg.UserAgent}
		if m.cfg.Locale != "" {
			override.AcceptLanguage = m.cfg.Locale
		}
		if err := page.SetUserAgent(override); err != nil {
			m.cfg.Logger.Warn("browser: user agent override failed", "error", err)
		}
	}

	if m.cfg.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: m.cfg.Timezone}).Call(page); err != nil {
			m.cfg.Logger.Debug("browser: timezone override failed", "error", err)
		}
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, m.cfg.ResourceBlocking); err != nil {
			m.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	s := &rodSession{
		browser: b,
		page:    page,
		cfg:     m.cfg,
		log:     newNetLog(),
	}
	if err := s.armNetworkLog(); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: arm network log: %w", err)
	}
	return s, nil
}

// Close shuts down Chrome.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}
