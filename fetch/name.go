package fetch

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const fallbackName = "edition.pdf"

var (
	reUnsafe     = regexp.MustCompile(`[\\/:*?"<>|]+`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Sanitize replaces filesystem-unsafe characters and collapses whitespace.
func Sanitize(name string) string {
	name = reUnsafe.ReplaceAllString(name, "_")
	name = reWhitespace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// resolveName derives the local filename, in priority order: the server's
// Content-Disposition header, the URL path basename (query stripped), then
// the caller's suggested metadata name.
func resolveName(disposition, rawURL, suggested string) string {
	if n := nameFromDisposition(disposition); n != "" {
		return Sanitize(n)
	}
	if n := nameFromURL(rawURL); n != "" {
		return Sanitize(n)
	}
	if suggested != "" {
		n := Sanitize(suggested)
		if !strings.HasSuffix(strings.ToLower(n), ".pdf") {
			n += ".pdf"
		}
		return n
	}
	return fallbackName
}

func nameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base
}
