package strategy

import "regexp"

var (
	reAnyPDF   = regexp.MustCompile(`(?i)\.pdf(?:\?.*)?$`)
	rePerPage  = regexp.MustCompile(`(?i)/pdf_pags/pdf_\d+\.pdf`)
	reComplete = regexp.MustCompile(`(?i)/pdf_pags/\d+\.pdf`)
)

// IsPDF reports whether the URL looks like a direct PDF resource.
func IsPDF(rawURL string) bool {
	return reAnyPDF.MatchString(rawURL)
}

// chooseBetter reconciles two detected URLs. The complete document always
// wins over a per-page match; any PDF match wins over a non-match; otherwise
// the earlier choice is kept to avoid oscillation.
func chooseBetter(current, candidate string) string {
	if candidate == "" {
		return current
	}
	if current == "" {
		return candidate
	}
	if rePerPage.MatchString(current) && reComplete.MatchString(candidate) {
		return candidate
	}
	if !reAnyPDF.MatchString(current) && reAnyPDF.MatchString(candidate) {
		return candidate
	}
	return current
}

// forceComplete upgrades a per-page URL to the complete-document URL when
// the Preparation manifest exposes one. Non-per-page URLs pass through.
func forceComplete(t *Target, detected string) string {
	if detected == "" || !rePerPage.MatchString(detected) {
		return detected
	}
	m := t.State.Manifest
	if m == nil || m.Complete == nil {
		return detected
	}
	if u := m.Complete.URL(); u != "" && reComplete.MatchString(u) {
		t.Logger.Info("strategy: per-page overridden by complete document",
			"detected", detected, "complete", u)
		return u
	}
	return detected
}

// manifestPick returns the manifest's preferred entry URL: the complete
// document when present, the first page otherwise, "" when neither exists.
func manifestPick(t *Target) string {
	m := t.State.Manifest
	if m == nil {
		return ""
	}
	if u := m.Complete.URL(); u != "" {
		return u
	}
	return m.FirstPage.URL()
}
