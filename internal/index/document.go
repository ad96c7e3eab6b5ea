// Package index publishes aggregated program records to a retrieval index.
//
// Every record becomes one plain-text Document keyed by a stable hash of the
// program name, so repeated runs overwrite the same documents. Publishing is a
// full refresh: the backend is emptied and then repopulated.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

// DocumentPrefix starts every document ID.
const DocumentPrefix = "degree_"

// Document is the unit stored in an index backend.
type Document struct {
	ID     string
	Name   string
	URL    string
	Text   string
	Record crawler.ProgramRecord
}

// FileName is the object or file name used by blob-like backends.
func (d Document) FileName() string {
	return d.ID + ".txt"
}

// DocumentID derives the stable ID for a program name. Names differing only
// in case or surrounding whitespace share an ID.
func DocumentID(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return DocumentPrefix + hex.EncodeToString(sum[:])[:16]
}

// IDFromFileName reverses FileName. ok is false for names that were not
// produced by this package.
func IDFromFileName(name string) (string, bool) {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if !strings.HasPrefix(name, DocumentPrefix) || !strings.HasSuffix(name, ".txt") {
		return "", false
	}
	return strings.TrimSuffix(name, ".txt"), true
}

// NewDocument renders rec into a Document.
func NewDocument(rec crawler.ProgramRecord) Document {
	name := recordName(rec)
	return Document{
		ID:     DocumentID(name),
		Name:   name,
		URL:    rec.ScrapedURL,
		Text:   FormatDocument(rec),
		Record: rec,
	}
}

func recordName(rec crawler.ProgramRecord) string {
	switch {
	case strings.TrimSpace(rec.ScrapedDegreeName) != "":
		return rec.ScrapedDegreeName
	case rec.Title != "" && rec.Title != crawler.TitleNotFound:
		return rec.Title
	default:
		return "Unknown Degree"
	}
}

// FormatDocument renders a record as a markdown-flavoured text document.
func FormatDocument(rec crawler.ProgramRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", recordName(rec))
	if rec.ScrapedURL != "" {
		fmt.Fprintf(&b, "Source URL: %s\n\n", rec.ScrapedURL)
	}

	b.WriteString("## Program Information\n\n")
	if rec.Description != "" && rec.Description != crawler.DescriptionNotFound {
		b.WriteString(rec.Description)
		b.WriteString("\n\n")
	}
	if rec.ProgramSnapshot.Len() > 0 {
		b.WriteString("### Program Snapshot\n\n")
		for _, k := range rec.ProgramSnapshot.Keys() {
			v, _ := rec.ProgramSnapshot.Get(k)
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
		b.WriteString("\n")
	}
	writeList(&b, "Admission Requirements", rec.AdmissionRequirements)
	writeList(&b, "Program Benefits", rec.ProgramBenefits)
	if !rec.ContactInfo.IsEmpty() {
		b.WriteString("### Contact Information\n\n")
		writeField(&b, "Phone", rec.ContactInfo.Phone)
		writeField(&b, "Email", rec.ContactInfo.Email)
		writeField(&b, "Address", rec.ContactInfo.Address)
		b.WriteString("\n")
	}
	if len(rec.RelatedPrograms) > 0 {
		b.WriteString("### Related Programs\n\n")
		for _, link := range rec.RelatedPrograms {
			fmt.Fprintf(&b, "- %s (%s)\n", link.Name, link.URL)
		}
		b.WriteString("\n")
	}
	for _, heading := range rec.KeySections.Keys() {
		body, _ := rec.KeySections.Get(heading)
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", heading, body)
	}
	if rec.AllText != "" {
		fmt.Fprintf(&b, "### Page Text\n\n%s\n\n", rec.AllText)
	}

	b.WriteString("## Metadata\n\n")
	if rec.Title != crawler.TitleNotFound {
		writeMeta(&b, "Title", rec.Title)
	}
	if rec.Description != crawler.DescriptionNotFound {
		writeMeta(&b, "Description", rec.Description)
	}
	writeMeta(&b, "Scraped Degree Name", rec.ScrapedDegreeName)
	writeMeta(&b, "Scraped URL", rec.ScrapedURL)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func writeField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func writeMeta(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "**%s**: %s\n", label, value)
	}
}
