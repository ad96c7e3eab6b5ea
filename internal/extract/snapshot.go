package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

func (e *Extractor) snapshot(doc *goquery.Document) crawler.OrderedMap {
	v, _ := firstOf(doc, e.snapshotFromAnchor, e.snapshotFromKeywordLines)
	return v
}

// snapshotFromAnchor reads key/value paragraphs from the section marked as
// the program snapshot.
func (e *Extractor) snapshotFromAnchor(doc *goquery.Document) (crawler.OrderedMap, bool) {
	var out crawler.OrderedMap
	anchors := withAttrContaining(doc, e.profile.SnapshotAnchors).
		AddSelection(headingsContaining(doc, e.profile.SnapshotAnchors))
	anchors.EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		sectionScope(anchor, e.profile.SectionLookahead).Find("p, li, dd").Each(func(_ int, line *goquery.Selection) {
			if key, value, ok := splitPair(text(line)); ok {
				out.Set(key, value)
			}
		})
		return out.Len() == 0
	})
	return out, out.Len() > 0
}

// snapshotFromKeywordLines scans every short paragraph on the page for
// "Key: Value" lines that mention a snapshot keyword.
func (e *Extractor) snapshotFromKeywordLines(doc *goquery.Document) (crawler.OrderedMap, bool) {
	var out crawler.OrderedMap
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		line := text(p)
		if runeLen(line) > e.profile.SnapshotMaxLineLength || !containsAny(line, e.profile.SnapshotKeywords) {
			return
		}
		if key, value, ok := splitPair(line); ok {
			out.Set(key, value)
		}
	})
	return out, out.Len() > 0
}

// splitPair splits a line on its first colon. Both halves must be non-empty
// and the value must not be the tail of a URL scheme.
func splitPair(line string) (string, string, bool) {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" || strings.HasPrefix(value, "//") {
		return "", "", false
	}
	return key, value, true
}
