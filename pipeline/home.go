package pipeline

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Edition is one enumerated entry on a home page.
type Edition struct {
	URL   string
	Title string
}

// collectEditions extracts viewer links from home-page HTML, dropping
// entries whose visible label or URL contains an exclude keyword and
// sorting preferred publications first. Order is otherwise stable.
func collectEditions(html, baseURL string, site *SiteProfile) []Edition {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var editions []Edition
	seen := make(map[string]bool)

	doc.Find(site.HomeCoverSelector).Each(func(_ int, cover *goquery.Selection) {
		href, ok := cover.Find(site.HomeLinkSelector).First().Attr("href")
		if !ok || href == "" {
			return
		}
		title := strings.TrimSpace(cover.Find(site.HomeTitleSelector).First().Text())

		full := resolveHome(baseURL, href)
		if excluded(title, full, site.ExcludeKeywords) {
			return
		}
		if seen[full] {
			return
		}
		seen[full] = true
		editions = append(editions, Edition{URL: full, Title: title})
	})

	sort.SliceStable(editions, func(i, j int) bool {
		return preferRank(editions[i].URL, site.PreferKeywords) <
			preferRank(editions[j].URL, site.PreferKeywords)
	})
	return editions
}

func resolveHome(base, href string) string {
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

func excluded(title, fullURL string, keywords []string) bool {
	lowTitle := strings.ToLower(title)
	lowURL := strings.ToLower(fullURL)
	for _, kw := range keywords {
		k := strings.ToLower(kw)
		if k == "" {
			continue
		}
		if strings.Contains(lowTitle, k) || strings.Contains(lowURL, k) {
			return true
		}
	}
	return false
}

func preferRank(fullURL string, keywords []string) int {
	low := strings.ToLower(fullURL)
	for i, kw := range keywords {
		if kw != "" && strings.Contains(low, strings.ToLower(kw)) {
			return i
		}
	}
	return len(keywords)
}
