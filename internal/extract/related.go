package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

func (e *Extractor) related(doc *goquery.Document) []crawler.ProgramLink {
	links, ok := firstOf(doc, e.relatedCardsUnderHeading, e.relatedCardsAnywhere, e.relatedNearHeading)
	if !ok {
		return []crawler.ProgramLink{}
	}
	return links
}

// relatedCardsUnderHeading prefers card containers inside the section of a
// "Related Degrees" or "Related Programs" heading.
func (e *Extractor) relatedCardsUnderHeading(doc *goquery.Document) ([]crawler.ProgramLink, bool) {
	links := e.newLinkSet()
	headingsContaining(doc, e.profile.RelatedHeadings).Each(func(_ int, heading *goquery.Selection) {
		scope := sectionScope(heading, e.profile.SectionLookahead)
		cards := scope.Find(e.profile.CardSelector).AddSelection(scope.Filter(e.profile.CardSelector))
		links.addAnchors(cards.Find("a[href]"), nil)
	})
	return links.result()
}

// relatedCardsAnywhere accepts card links site-wide whose target looks like a
// program page.
func (e *Extractor) relatedCardsAnywhere(doc *goquery.Document) ([]crawler.ProgramLink, bool) {
	links := e.newLinkSet()
	links.addAnchors(doc.Find(e.profile.CardSelector).Find("a[href]"), func(target string) bool {
		u, err := url.Parse(target)
		return err == nil && containsAny(u.Path, e.profile.RelatedURLKeywords)
	})
	return links.result()
}

// relatedNearHeading takes any links in the section of a heading that
// mentions related programs.
func (e *Extractor) relatedNearHeading(doc *goquery.Document) ([]crawler.ProgramLink, bool) {
	links := e.newLinkSet()
	headingsContaining(doc, []string{"related"}).Each(func(_ int, heading *goquery.Selection) {
		links.addAnchors(sectionScope(heading, e.profile.SectionLookahead).Find("a[href]"), nil)
	})
	return links.result()
}

type linkSet struct {
	base  *url.URL
	card  string
	limit int
	seen  map[string]struct{}
	links []crawler.ProgramLink
}

func (e *Extractor) newLinkSet() *linkSet {
	var base *url.URL
	if e.profile.BaseURL != "" {
		if u, err := url.Parse(e.profile.BaseURL); err == nil {
			base = u
		}
	}
	return &linkSet{base: base, card: e.profile.CardSelector, limit: e.profile.MaxRelated, seen: make(map[string]struct{})}
}

func (l *linkSet) addAnchors(anchors *goquery.Selection, accept func(string) bool) {
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if l.limit > 0 && len(l.links) >= l.limit {
			return false
		}
		target, ok := l.resolve(a.AttrOr("href", ""))
		if !ok || (accept != nil && !accept(target)) {
			return true
		}
		name := text(a)
		if name == "" {
			name = text(a.Closest(l.card).Find(headingSelector).First())
		}
		if name == "" {
			return true
		}
		if _, dup := l.seen[target]; dup {
			return true
		}
		l.seen[target] = struct{}{}
		l.links = append(l.links, crawler.ProgramLink{Name: name, URL: target})
		return true
	})
}

func (l *linkSet) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if l.base != nil {
		ref = l.base.ResolveReference(ref)
	}
	return ref.String(), true
}

func (l *linkSet) result() ([]crawler.ProgramLink, bool) {
	return l.links, len(l.links) > 0
}
