package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

func (e *Extractor) title(doc *goquery.Document) string {
	v, ok := firstOf(doc, e.titleFromH1, e.titleFromTitleTag, e.titleFromBanner)
	if !ok {
		return crawler.TitleNotFound
	}
	return v
}

func (e *Extractor) acceptTitle(s string) (string, bool) {
	return s, s != "" && runeLen(s) >= e.profile.MinTitleLength
}

func (e *Extractor) titleFromH1(doc *goquery.Document) (string, bool) {
	return e.acceptTitle(text(doc.Find("h1").First()))
}

func (e *Extractor) titleFromTitleTag(doc *goquery.Document) (string, bool) {
	return e.acceptTitle(text(doc.Find("title").First()))
}

func (e *Extractor) titleFromBanner(doc *goquery.Document) (string, bool) {
	for _, sel := range e.profile.BannerSelectors {
		heading := doc.Find(sel).Find(headingSelector).First()
		if v, ok := e.acceptTitle(text(heading)); ok {
			return v, true
		}
	}
	return "", false
}

func (e *Extractor) description(doc *goquery.Document) string {
	v, ok := firstOf(doc, e.descriptionFromMainContent, e.descriptionFromKeywords)
	if !ok {
		return crawler.DescriptionNotFound
	}
	return v
}

func (e *Extractor) descriptionFromMainContent(doc *goquery.Document) (string, bool) {
	for _, sel := range e.profile.MainContentSelectors {
		var found string
		doc.Find(sel).Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
			if t := text(p); runeLen(t) >= e.profile.MinDescriptionLength {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

func (e *Extractor) descriptionFromKeywords(doc *goquery.Document) (string, bool) {
	var found string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := text(p)
		if runeLen(t) >= e.profile.MinDescriptionLength && containsAny(t, e.profile.DescriptionKeywords) {
			found = t
			return false
		}
		return true
	})
	return found, found != ""
}
