package crawler

import (
	"net/url"
	"path"
	"strings"
)

// Rejection reasons reported by the admission filter. They label metrics and
// log lines; the set is closed.
const (
	RejectMalformed   = "malformed"
	RejectScheme      = "scheme"
	RejectQuery       = "query"
	RejectExtension   = "extension"
	RejectDomain      = "domain"
	RejectPathPattern = "path_pattern"
)

// Verdict is the admission filter's decision for one URL.
type Verdict struct {
	Admit  bool
	Reason string
}

// skipExtensions lists path suffixes that never lead to crawlable pages.
var skipExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".ico": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
	".mp4": {}, ".webm": {}, ".avi": {}, ".mov": {}, ".mkv": {},
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".csv": {},
	".zip": {}, ".rar": {}, ".tar": {}, ".gz": {}, ".7z": {},
	".css": {}, ".js": {}, ".json": {}, ".xml": {}, ".woff": {}, ".woff2": {},
}

// functionalPatterns mark account, checkout, and sharing flows. Crawling
// them would mutate carts and sessions, so they are rejected outright.
var functionalPatterns = []string{
	"login", "logout", "signin", "signup", "register", "auth",
	"account", "profile", "password",
	"cart", "checkout", "payment", "order",
	"add-to-cart", "add-to-wishlist", "wishlist-add",
	"compare-product", "brochure-download", "product-tag", "share",
}

// AdmissionFilter decides which URLs enter the crawl pipeline. It holds no
// mutable state; the same URL always produces the same verdict.
type AdmissionFilter struct {
	allowed map[string]struct{}
}

// NewAdmissionFilter builds a filter for the given domain allow-list.
// Entries are canonicalized the same way page domains are.
func NewAdmissionFilter(allowedDomains []string) *AdmissionFilter {
	allowed := make(map[string]struct{}, len(allowedDomains))
	for _, d := range allowedDomains {
		if domain := CanonicalDomain(d); domain != "" {
			allowed[domain] = struct{}{}
		}
	}
	return &AdmissionFilter{allowed: allowed}
}

// Check classifies a raw URL for admission.
func (f *AdmissionFilter) Check(rawURL string) Verdict {
	if strings.ContainsAny(rawURL, "?&") {
		return Verdict{Reason: RejectQuery}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Verdict{Reason: RejectMalformed}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Verdict{Reason: RejectScheme}
	}

	lowerPath := strings.ToLower(u.Path)
	if ext := path.Ext(lowerPath); ext != "" {
		if _, skip := skipExtensions[ext]; skip {
			return Verdict{Reason: RejectExtension}
		}
	}

	if _, ok := f.allowed[CanonicalDomain(u.Hostname())]; !ok {
		return Verdict{Reason: RejectDomain}
	}

	for _, pattern := range functionalPatterns {
		if strings.Contains(lowerPath, pattern) {
			return Verdict{Reason: RejectPathPattern}
		}
	}

	return Verdict{Admit: true}
}
