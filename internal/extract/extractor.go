// Package extract turns a program detail page into a crawler.ProgramRecord.
//
// Every field is produced by its own sub-extractor, and each sub-extractor
// tries an ordered list of strategies until one yields a value. A
// sub-extractor that panics contributes its "not found" value; the others
// still run, so Extract never fails.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

// strategy is one way of locating a field value.
type strategy[T any] func(doc *goquery.Document) (T, bool)

func firstOf[T any](doc *goquery.Document, strategies ...strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(doc); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Extractor implements crawler.DetailExtractor.
type Extractor struct {
	profile Profile
	logger  *zap.Logger
}

// New returns an Extractor using profile.
func New(profile Profile, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{profile: profile, logger: logger}
}

// Extract parses html and runs every sub-extractor against it. Fields that
// could not be located keep their sentinel or empty values.
func (e *Extractor) Extract(html string) crawler.ProgramRecord {
	rec := crawler.NewProgramRecord()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("parse detail html", zap.Error(err))
		return rec
	}

	rec.Title = guard(e.logger, "title", crawler.TitleNotFound, func() string { return e.title(doc) })
	rec.Description = guard(e.logger, "description", crawler.DescriptionNotFound, func() string { return e.description(doc) })
	rec.ProgramSnapshot = guard(e.logger, "program_snapshot", crawler.OrderedMap{}, func() crawler.OrderedMap { return e.snapshot(doc) })
	rec.AdmissionRequirements = guard(e.logger, "admission_requirements", []string{}, func() []string { return e.admissionRequirements(doc) })
	rec.ProgramBenefits = guard(e.logger, "program_benefits", []string{}, func() []string { return e.benefits(doc) })
	rec.ContactInfo = guard(e.logger, "contact_info", crawler.ContactInfo{}, func() crawler.ContactInfo { return e.contact(doc) })
	rec.RelatedPrograms = guard(e.logger, "related_programs", []crawler.ProgramLink{}, func() []crawler.ProgramLink { return e.related(doc) })
	rec.KeySections = guard(e.logger, "key_sections", crawler.OrderedMap{}, func() crawler.OrderedMap { return e.keySections(doc) })
	rec.AllText = guard(e.logger, "all_text", "", func() string { return e.allText(doc) })
	return rec
}

func guard[T any](logger *zap.Logger, field string, fallback T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("sub-extractor panicked",
				zap.String("field", field),
				zap.String("panic", fmt.Sprint(r)),
			)
			out = fallback
		}
	}()
	return fn()
}
