package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

// keySections maps each h2-h4 heading to the text of the siblings that follow
// it, up to the next heading. The first occurrence of a heading wins.
func (e *Extractor) keySections(doc *goquery.Document) crawler.OrderedMap {
	var out crawler.OrderedMap
	doc.Find("h2, h3, h4").Each(func(_ int, heading *goquery.Selection) {
		title := text(heading)
		if title == "" {
			return
		}
		body := text(siblingsUntilHeading(heading, e.profile.SectionLookahead))
		if body == "" {
			return
		}
		out.SetIfAbsent(title, truncate(body, e.profile.MaxSectionLength))
	})
	return out
}

// allText returns the normalized text of the main content region with
// scripts, styles, navigation, headers, and footers removed. The document
// passed in is left untouched.
func (e *Extractor) allText(doc *goquery.Document) string {
	clone := doc.Selection.Clone()
	clone.Find("script, style, noscript, nav, header, footer").Remove()

	for _, sel := range e.profile.AllTextSelectors {
		if region := clone.Find(sel).First(); region.Length() > 0 {
			if t := text(region); t != "" {
				return t
			}
		}
	}
	if body := clone.Find("body"); body.Length() > 0 {
		return text(body)
	}
	return text(clone)
}
