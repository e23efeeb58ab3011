// CLAUDE:SUMMARY Defines pipeline config structs and parses YAML configuration files with defaults.
package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy selects the acquisition chain.
type Policy string

const (
	// PolicyPreferAutomation lets the browser reveal the resource (panel
	// toggle + sniffer) before falling back to the manifest.
	PolicyPreferAutomation Policy = "prefer-automation"
	// PolicyForceFetch reads the manifest first and denies native browser
	// downloads; every transfer goes through the cloned HTTP session.
	PolicyForceFetch Policy = "force-fetch"
)

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headless         *bool    `yaml:"headless"`
	UserAgent        string   `yaml:"user_agent"`
	Locale           string   `yaml:"locale"`
	Timezone         string   `yaml:"timezone"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// SiteProfile carries the site-specific selectors and affordances. The
// pipeline core never hard-codes these; defaults target the e-paper viewers
// the tool was built for.
type SiteProfile struct {
	// Viewer deep links on listing pages.
	ViewerSelector string   `yaml:"viewer_selector"`
	ViewerMarkers  []string `yaml:"viewer_markers"`

	// Embed iframe handling.
	EmbedIframeSelector string `yaml:"embed_iframe_selector"`
	EmbedMarker         string `yaml:"embed_marker"`

	// Manifest extraction inside the viewer.
	ManifestWrapperSelector string `yaml:"manifest_wrapper_selector"`
	ManifestAnchorSelector  string `yaml:"manifest_anchor_selector"`

	// Home-page edition enumeration.
	HomeCoverSelector string   `yaml:"home_cover_selector"`
	HomeLinkSelector  string   `yaml:"home_link_selector"`
	HomeTitleSelector string   `yaml:"home_title_selector"`
	ExcludeKeywords   []string `yaml:"exclude_keywords"`
	PreferKeywords    []string `yaml:"prefer_keywords"`

	// Complete-document fast path on the viewer toolbar.
	EpaperViewerMarker    string `yaml:"epaper_viewer_marker"`
	EpaperToolbarSelector string `yaml:"epaper_toolbar_selector"`
	EpaperAnchorSelector  string `yaml:"epaper_anchor_selector"`
}

// Config is the top-level pipeline configuration.
type Config struct {
	Browser     BrowserConfig `yaml:"browser"`
	DownloadDir string        `yaml:"download_dir"`
	Policy      Policy        `yaml:"policy"`

	// LedgerPath is the SQLite file recording completed downloads.
	// Empty disables the ledger.
	LedgerPath string `yaml:"ledger"`

	// VerifyPDF validates downloaded files with pdfcpu before reporting
	// success.
	VerifyPDF bool `yaml:"verify_pdf"`

	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	Site SiteProfile `yaml:"site"`
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("pipeline: parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = "descargas"
	}
	if c.Policy == "" {
		c.Policy = PolicyPreferAutomation
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 3 * time.Minute
	}
	if c.Browser.Locale == "" {
		c.Browser.Locale = "es-419"
	}

	s := &c.Site
	if s.ViewerSelector == "" {
		s.ViewerSelector = `.magazine-publications a[href*="viewer.aspx"]`
	}
	if len(s.ViewerMarkers) == 0 {
		s.ViewerMarkers = []string{"viewer.aspx", "issuu.com"}
	}
	if s.EmbedIframeSelector == "" {
		s.EmbedIframeSelector = `iframe[src*="issuu.com/embed.html"], iframe[src*="e.issuu.com/embed.html"]`
	}
	if s.EmbedMarker == "" {
		s.EmbedMarker = "issuu.com/embed.html"
	}
	if s.ManifestWrapperSelector == "" {
		s.ManifestWrapperSelector = ".magazine-pdf-wrapper"
	}
	if s.ManifestAnchorSelector == "" {
		s.ManifestAnchorSelector = "a.complete-download-buttom"
	}
	if s.HomeCoverSelector == "" {
		s.HomeCoverSelector = ".magazine-publications-outstanding-covers .cover"
	}
	if s.HomeLinkSelector == "" {
		s.HomeLinkSelector = `a[href*="viewer.aspx"]`
	}
	if s.HomeTitleSelector == "" {
		s.HomeTitleSelector = ".publication-description"
	}
	if len(s.ExcludeKeywords) == 0 {
		s.ExcludeKeywords = []string{"publicidad"}
	}
	if len(s.PreferKeywords) == 0 {
		s.PreferKeywords = []string{"publication=diariolibre"}
	}
	if s.EpaperViewerMarker == "" {
		s.EpaperViewerMarker = "viewer.aspx"
	}
	if s.EpaperToolbarSelector == "" {
		s.EpaperToolbarSelector = ".magazine-toolbar .magazine-toolbar-pdf .icon-file-pdf"
	}
	if s.EpaperAnchorSelector == "" {
		s.EpaperAnchorSelector = `.magazine-pdf-wrapper .magazine-pdf a.complete-download-buttom[data-pagenum='complete']`
	}
}
