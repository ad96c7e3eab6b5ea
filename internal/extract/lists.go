package extract

import (
	"github.com/PuerkitoBio/goquery"
)

// pageChromeSelector matches navigation regions whose links mention
// admissions without listing requirements.
const pageChromeSelector = "nav, header, footer"

// admissionRequirements collects requirement items from sections explicitly
// tied to admissions. There is no site-wide fallback: a page without such a
// section yields an empty list.
func (e *Extractor) admissionRequirements(doc *goquery.Document) []string {
	items := newCollector(e.profile.MinItemLength, e.profile.MaxRequirements)
	anchors := withAttrContaining(doc, e.profile.AdmissionAnchors).
		AddSelection(headingsContaining(doc, e.profile.AdmissionHeadings)).
		FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Closest(pageChromeSelector).Length() == 0
		})

	anchors.EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		scope := sectionScope(anchor, e.profile.SectionLookahead)
		leafItems(scope, items.add)
		scope.Find("p").Each(func(_ int, p *goquery.Selection) {
			if t := text(p); containsAny(t, e.profile.RequirementPhrases) {
				items.add(t)
			}
		})
		return !items.full()
	})
	return items.items
}

// benefits collects list items that follow headings naming benefits or
// outcomes.
func (e *Extractor) benefits(doc *goquery.Document) []string {
	items := newCollector(e.profile.MinItemLength, 0)
	headingsContaining(doc, e.profile.BenefitKeywords).Each(func(_ int, heading *goquery.Selection) {
		before := len(items.items)
		leafItems(siblingsUntilHeading(heading, e.profile.SectionLookahead), items.add)
		if len(items.items) == before {
			leafItems(sectionScope(heading, e.profile.SectionLookahead), items.add)
		}
	})
	return items.items
}
