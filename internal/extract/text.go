package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/degree-indexer/internal/textnorm"
)

const headingSelector = "h1, h2, h3, h4, h5, h6"

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "section": true, "table": true, "td": true, "th": true, "tr": true,
	"ul": true,
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

// rawText concatenates the text under sel, separating block-level elements
// with spaces and ignoring script and style content.
func rawText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedTags[n.Data] {
			return
		}
	}
	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte(' ')
	}
}

// text returns the normalized text under sel.
func text(sel *goquery.Selection) string {
	return textnorm.Normalize(rawText(sel))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func truncate(s string, limit int) string {
	if limit <= 0 || runeLen(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// withAttrContaining selects elements whose id or name attribute contains
// one of the fragments.
func withAttrContaining(doc *goquery.Document, fragments []string) *goquery.Selection {
	return doc.Find("[id], [name]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return containsAny(s.AttrOr("id", ""), fragments) || containsAny(s.AttrOr("name", ""), fragments)
	})
}

// headingsContaining selects headings whose text contains one of phrases.
func headingsContaining(doc *goquery.Document, phrases []string) *goquery.Selection {
	return doc.Find(headingSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return containsAny(text(s), phrases)
	})
}

// sectionScope returns the region of the page that belongs to anchor. A
// content-bearing element is its own section. A heading or empty marker
// belongs to its parent, widened with adjacent heading-free siblings; when
// that parent holds several headings only the siblings up to the next
// heading are used.
func sectionScope(anchor *goquery.Selection, lookahead int) *goquery.Selection {
	if !anchor.Is(headingSelector) && anchor.Children().Length() > 0 {
		return anchor
	}
	container := anchor.Parent()
	if container.Length() == 0 || container.Is("body, html") || container.Find(headingSelector).Length() > 1 {
		return siblingsUntilHeading(anchor, lookahead)
	}
	scope := container
	next := container.Next()
	for i := 0; i < 2 && next.Length() > 0; i++ {
		if next.Is(headingSelector) || next.Find(headingSelector).Length() > 0 {
			break
		}
		scope = scope.AddSelection(next)
		next = next.Next()
	}
	return scope
}

// siblingsUntilHeading returns up to limit element siblings following anchor,
// stopping at the next heading.
func siblingsUntilHeading(anchor *goquery.Selection, limit int) *goquery.Selection {
	out := anchor.Slice(0, 0)
	next := anchor.Next()
	for i := 0; i < limit && next.Length() > 0; i++ {
		if next.Is(headingSelector) {
			break
		}
		out = out.AddSelection(next)
		next = next.Next()
	}
	return out
}

// collector accumulates unique, normalized list items up to a bound.
type collector struct {
	seen  map[string]struct{}
	items []string
	min   int
	bound int
}

func newCollector(minLen, bound int) *collector {
	return &collector{seen: make(map[string]struct{}), items: []string{}, min: minLen, bound: bound}
}

func (c *collector) add(s string) {
	if c.full() || runeLen(s) < c.min {
		return
	}
	if _, ok := c.seen[s]; ok {
		return
	}
	c.seen[s] = struct{}{}
	c.items = append(c.items, s)
}

func (c *collector) full() bool {
	return c.bound > 0 && len(c.items) >= c.bound
}

// leafItems calls fn with the text of each list item under scope that does
// not itself contain a nested list item.
func leafItems(scope *goquery.Selection, fn func(string)) {
	scope.Find("li").Each(func(_ int, li *goquery.Selection) {
		if li.Find("li").Length() > 0 {
			return
		}
		fn(text(li))
	})
}
