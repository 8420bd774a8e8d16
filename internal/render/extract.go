package render

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
)

// buildPage assembles a RenderedPage from a raw HTML snapshot. Links are
// resolved against the final URL so redirected pages yield correct targets,
// while the record keys on the URL that was requested.
func buildPage(rawURL, finalURL string, html []byte) (crawler.RenderedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(finalURL)
	if err != nil || base.Host == "" {
		base, err = url.Parse(rawURL)
		if err != nil {
			return crawler.RenderedPage{}, fmt.Errorf("parse page url: %w", err)
		}
	}

	links := extractLinks(doc, base)
	text := extractText(doc)

	return crawler.RenderedPage{
		URL:   rawURL,
		HTML:  html,
		Text:  text,
		Links: links,
	}, nil
}

// extractLinks returns absolute same-domain anchor targets in document
// order, fragment-stripped and deduplicated within the page.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	baseDomain := crawler.CanonicalDomain(base.Hostname())
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if crawler.CanonicalDomain(abs.Hostname()) != baseDomain {
			return
		}
		abs.Fragment = ""

		link := abs.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	return links
}

// extractText returns the page's visible text with script, style, and
// noscript content removed and whitespace collapsed. The admission of a
// page as useful content is judged against this string.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(body.Text()), " ")
}
