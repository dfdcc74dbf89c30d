package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// CanonicalSelector selects the page's self-referential canonical link.
const CanonicalSelector = `link[rel="canonical"]`

// LinkHref parses rawHTML and returns the href attribute of the first element
// matching selector. An invalid selector, unparsable markup, a missing element
// or an empty href all report false.
func LinkHref(rawHTML, selector string) (string, bool) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", false
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}

	node := cascadia.Query(doc, sel)
	if node == nil {
		return "", false
	}
	for _, attr := range node.Attr {
		if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
			return strings.TrimSpace(attr.Val), true
		}
	}
	return "", false
}

// PageTitle returns the og:title of a page, falling back to the <title>
// element. Returns "" when neither is present.
func PageTitle(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	if content, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
