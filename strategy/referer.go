package strategy

import (
	"net/url"
	"strings"
)

// issuuStorageReferer is the fixed referer the signed original-file storage
// host expects. Its natural cross-origin referer gets rejected.
const issuuStorageReferer = "https://e.issuu.com/"

// RefererFor picks the referer for fetching target from a page currently at
// current: same host uses the page URL, cross origin uses the target's own
// origin, and the known storage-host exception gets its fixed override.
func RefererFor(target, current string) string {
	tu, err := url.Parse(target)
	if err != nil {
		return current
	}

	host := strings.ToLower(tu.Hostname())
	if strings.Contains(host, "s3.amazonaws.com") &&
		strings.Contains(strings.ToLower(tu.Path), "document.issuu.com") {
		return issuuStorageReferer
	}

	cu, err := url.Parse(current)
	if err == nil && tu.Host != "" && cu.Host != "" && tu.Host == cu.Host {
		return current
	}
	if tu.Scheme != "" && tu.Host != "" {
		return tu.Scheme + "://" + tu.Host
	}
	return current
}
