// Package listing parses the program listing page into ordered entries.
//
// Matching is a cascade: an explicit selector hint first, then a secondary
// class-based selector, then any container whose class contains a listing
// keyword, and finally the first list on the page that holds links. The
// cascade stops at the first matcher whose container yields an entry.
package listing

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/textnorm"
)

// Default matcher configuration.
const (
	DefaultSelector          = "div.searchable_list ul, ul.searchable-list"
	DefaultSecondarySelector = "ul.degree-list"
)

// DefaultKeywords are the class-name fragments tried by the keyword matcher.
var DefaultKeywords = []string{"degree", "program"}

// Hint tunes the matcher cascade. Zero fields fall back to the defaults.
type Hint struct {
	Selector          string
	SecondarySelector string
	Keywords          []string
}

func (h Hint) withDefaults() Hint {
	if strings.TrimSpace(h.Selector) == "" {
		h.Selector = DefaultSelector
	}
	if strings.TrimSpace(h.SecondarySelector) == "" {
		h.SecondarySelector = DefaultSecondarySelector
	}
	if len(h.Keywords) == 0 {
		h.Keywords = DefaultKeywords
	}
	return h
}

type matcher struct {
	name string
	find func(doc *goquery.Document) *goquery.Selection
}

// Result carries the entries and the name of the matcher that produced them.
type Result struct {
	Entries []crawler.ProgramListing
	Matcher string
}

// Parse extracts the listing entries from html. When no matcher yields an
// entry it returns *crawler.EmptyListingError.
func Parse(html string, hint Hint) ([]crawler.ProgramListing, error) {
	res, err := ParseDetailed(html, hint)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// ParseDetailed behaves like Parse and also reports which matcher fired.
func ParseDetailed(html string, hint Hint) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, fmt.Errorf("parse listing html: %w", err)
	}
	matchers := cascade(hint.withDefaults())
	tried := make([]string, 0, len(matchers))
	for _, m := range matchers {
		tried = append(tried, m.name)
		var entries []crawler.ProgramListing
		m.find(doc).EachWithBreak(func(_ int, container *goquery.Selection) bool {
			entries = entriesIn(container)
			return len(entries) == 0
		})
		if len(entries) > 0 {
			return Result{Entries: entries, Matcher: m.name}, nil
		}
	}
	return Result{}, &crawler.EmptyListingError{Matchers: tried}
}

func cascade(h Hint) []matcher {
	return []matcher{
		{name: "selector", find: bySelector(h.Selector)},
		{name: "secondary", find: bySelector(h.SecondarySelector)},
		{name: "keyword", find: byClassKeyword(h.Keywords)},
		{name: "first-list", find: bySelector("ul, ol")},
	}
}

func bySelector(selector string) func(*goquery.Document) *goquery.Selection {
	return func(doc *goquery.Document) *goquery.Selection {
		return doc.Find(selector)
	}
}

func byClassKeyword(keywords []string) func(*goquery.Document) *goquery.Selection {
	return func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			class := strings.ToLower(s.AttrOr("class", ""))
			for _, kw := range keywords {
				if kw != "" && strings.Contains(class, strings.ToLower(kw)) {
					return true
				}
			}
			return false
		})
	}
}

// entriesIn reads each list item of container in document order. Items
// without a usable link or name are skipped. When several items link to the
// same URL, the first one wins.
func entriesIn(container *goquery.Selection) []crawler.ProgramListing {
	var entries []crawler.ProgramListing
	seen := make(map[string]struct{})
	container.Find("li").Each(func(_ int, item *goquery.Selection) {
		anchor := item.ChildrenFiltered("a[href]").First()
		if anchor.Length() == 0 {
			if item.Find("li").Length() > 0 {
				return
			}
			anchor = item.Find("a[href]").First()
		}
		if anchor.Length() == 0 {
			return
		}
		href := strings.TrimSpace(anchor.AttrOr("href", ""))
		name := textnorm.Normalize(anchor.Text())
		if name == "" {
			name = textnorm.Normalize(item.Text())
		}
		if href == "" || name == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		entries = append(entries, crawler.ProgramListing{Name: name, URL: href})
	})
	return entries
}

// Parser binds a Hint and logger so the orchestrator can depend on
// crawler.ListingParser.
type Parser struct {
	hint   Hint
	logger *zap.Logger
}

// NewParser returns a Parser.
func NewParser(hint Hint, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{hint: hint, logger: logger}
}

// Parse implements crawler.ListingParser.
func (p *Parser) Parse(html string) ([]crawler.ProgramListing, error) {
	res, err := ParseDetailed(html, p.hint)
	if err != nil {
		p.logger.Warn("listing page yielded no programs", zap.Error(err))
		return nil, err
	}
	p.logger.Info("parsed listing",
		zap.String("matcher", res.Matcher),
		zap.Int("entries", len(res.Entries)),
	)
	return res.Entries, nil
}
