// Package crawler defines core types shared across subsystems.
package crawler

// PlaceholderLocator marks a page that has been discovered but not crawled
// yet. A successful crawl replaces it with the artifact locator.
const PlaceholderLocator = "pending"

// WorkItem is one unit of crawl work pulled from the work queue.
// DeliveryToken identifies the most recent delivery of the URL; it is
// invalidated by redelivery and must never be treated as stable.
type WorkItem struct {
	URL           string
	DeliveryToken string
}

// PageRecord is the crawler's durable knowledge about a single page.
// URL is the unique key in the page store.
type PageRecord struct {
	URL            string
	Domain         string
	ContentLocator string
	Active         bool
}

// RenderedPage is the result returned by a Renderer implementation.
// Links are absolute, fragment-free, restricted to the page's own domain,
// and deduplicated within the page.
type RenderedPage struct {
	URL   string
	HTML  []byte
	Text  string
	Links []string
}
