package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPageExtractsSameDomainLinks(t *testing.T) {
	t.Parallel()

	html := []byte(`<!doctype html><html><body>
		<h1>Oak dining tables</h1>
		<a href="/products/oak-round-table">Round</a>
		<a href="https://shop.example/products/oak-long-table">Long</a>
		<a href="https://www.shop.example/products/oak-bench">Bench</a>
		<a href="/products/oak-round-table">Round again</a>
		<a href="/products/oak-round-table#reviews">Round reviews</a>
		<a href="https://other.example/products/oak-copy">Competitor</a>
		<a href="mailto:sales@shop.example">Mail</a>
		<a href="javascript:void(0)">Noop</a>
		<a href="tel:+1555000">Call</a>
		<a href="#top">Top</a>
		<a href="">Empty</a>
	</body></html>`)

	page, err := buildPage("https://shop.example/categories/dining", "https://shop.example/categories/dining", html)
	require.NoError(t, err)

	require.Equal(t, []string{
		"https://shop.example/products/oak-round-table",
		"https://shop.example/products/oak-long-table",
		"https://www.shop.example/products/oak-bench",
	}, page.Links)
}

func TestBuildPageResolvesAgainstFinalURL(t *testing.T) {
	t.Parallel()

	html := []byte(`<html><body><a href="chairs/velvet">Velvet chairs</a></body></html>`)

	page, err := buildPage(
		"https://shop.example/old-catalog",
		"https://shop.example/catalog/",
		html,
	)
	require.NoError(t, err)

	require.Equal(t, "https://shop.example/old-catalog", page.URL)
	require.Equal(t, []string{"https://shop.example/catalog/chairs/velvet"}, page.Links)
}

func TestBuildPageFallsBackToRequestURL(t *testing.T) {
	t.Parallel()

	html := []byte(`<html><body><a href="/sofas">Sofas</a></body></html>`)

	page, err := buildPage("https://shop.example/home", "", html)
	require.NoError(t, err)
	require.Equal(t, []string{"https://shop.example/sofas"}, page.Links)
}

func TestBuildPageExtractsVisibleText(t *testing.T) {
	t.Parallel()

	html := []byte(`<html><head><style>body { color: red }</style></head><body>
		<script>trackVisit();</script>
		<noscript>Enable JavaScript</noscript>
		<h1>Walnut   sideboard</h1>
		<p>Hand-finished,
		   two   drawers.</p>
	</body></html>`)

	page, err := buildPage("https://shop.example/p", "https://shop.example/p", html)
	require.NoError(t, err)

	require.Equal(t, "Walnut sideboard Hand-finished, two drawers.", page.Text)
	require.NotContains(t, page.Text, "trackVisit")
	require.NotContains(t, page.Text, "Enable JavaScript")
	require.NotContains(t, page.Text, "color: red")
}

func TestBuildPageEmptyBody(t *testing.T) {
	t.Parallel()

	page, err := buildPage("https://shop.example/p", "https://shop.example/p", []byte("<html></html>"))
	require.NoError(t, err)
	require.Empty(t, page.Links)
}

func TestBuildPageKeepsRawHTML(t *testing.T) {
	t.Parallel()

	html := []byte(`<html><body><h1>Showroom</h1></body></html>`)
	page, err := buildPage("https://shop.example/p", "https://shop.example/p", html)
	require.NoError(t, err)
	require.Equal(t, html, page.HTML)
}
