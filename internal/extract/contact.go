package extract

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/textnorm"
)

var (
	phonePattern   = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]\d{4}\b`)
	emailPattern   = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	addressPattern = regexp.MustCompile(
		`(?i)\b\d{1,6}\s+[A-Za-z0-9.'\s]+?\b(?:street|st|avenue|ave|road|rd|drive|dr|boulevard|blvd|lane|ln|way|parkway|pkwy|court|ct|place|pl|circle|cir|highway|hwy)\b\.?(?:[,\s]+[A-Za-z0-9.'#\s]+?)??,?\s+[A-Z]{2}\s+\d{5}(?:-\d{4})?\b`,
	)
)

func (e *Extractor) contact(doc *goquery.Document) crawler.ContactInfo {
	var info crawler.ContactInfo
	info.Phone, _ = firstOf(doc, phoneFromLink, phoneFromText)
	info.Email, _ = firstOf(doc, emailFromLink, emailFromText)
	info.Address, _ = firstOf(doc, e.addressNearKeyword, addressFromTag)
	return info
}

func phoneFromLink(doc *goquery.Document) (string, bool) {
	var phone string
	doc.Find("a[href^='tel:']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		phone = textnorm.Normalize(strings.TrimPrefix(a.AttrOr("href", ""), "tel:"))
		return phone == ""
	})
	return phone, phone != ""
}

func phoneFromText(doc *goquery.Document) (string, bool) {
	m := phonePattern.FindString(text(doc.Find("body")))
	return m, m != ""
}

func emailFromLink(doc *goquery.Document) (string, bool) {
	var email string
	doc.Find("a[href^='mailto:']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		addr := strings.TrimPrefix(a.AttrOr("href", ""), "mailto:")
		addr, _, _ = strings.Cut(addr, "?")
		if candidate, ok := validEmail(addr); ok {
			email = candidate
			return false
		}
		return true
	})
	return email, email != ""
}

// emailFromText scans whitespace-separated tokens of the visible text. Tokens
// that look like stylesheet fragments are rejected.
func emailFromText(doc *goquery.Document) (string, bool) {
	for _, token := range strings.Fields(text(doc.Find("body"))) {
		if strings.HasPrefix(token, ".") || looksLikeStylesheet(token) {
			continue
		}
		if candidate, ok := validEmail(strings.Trim(token, `.,;:()[]<>"'`)); ok {
			return candidate, true
		}
	}
	return "", false
}

func validEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || looksLikeStylesheet(s) || !emailPattern.MatchString(s) {
		return "", false
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return "", false
	}
	return s, true
}

func looksLikeStylesheet(s string) bool {
	return strings.HasPrefix(s, ".") ||
		strings.Contains(s, "@media") ||
		strings.Contains(s, "@import") ||
		strings.ContainsAny(s, "{}")
}

// addressNearKeyword looks for a street address in elements that mention a
// campus, address, or location keyword, including the element right after.
func (e *Extractor) addressNearKeyword(doc *goquery.Document) (string, bool) {
	var address string
	doc.Find("p, li, address, span, div, td").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Is("div") && s.Find("p, li, div, address").Length() > 0 {
			return true
		}
		own := text(s)
		if !containsAny(own, e.profile.ContactKeywords) {
			return true
		}
		address = addressPattern.FindString(own + " " + text(s.Next()))
		return address == ""
	})
	return address, address != ""
}

func addressFromTag(doc *goquery.Document) (string, bool) {
	var address string
	doc.Find("address").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		address = addressPattern.FindString(text(s))
		return address == ""
	})
	return address, address != ""
}
