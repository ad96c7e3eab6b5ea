package crawler

import (
	"fmt"
	"time"
)

// Sentinels used when a single-valued field could not be located.
const (
	TitleNotFound       = "Title not found"
	DescriptionNotFound = "Description not found"
)

// ProgramListing is one entry discovered on the listing page.
type ProgramListing struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ProgramLink points at a related program discovered on a detail page.
type ProgramLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ContactInfo carries whichever contact fields were found. Absent keys mean
// the field was not located.
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// IsEmpty reports whether no contact field was found.
func (c ContactInfo) IsEmpty() bool {
	return c.Phone == "" && c.Email == "" && c.Address == ""
}

// ProgramRecord is the structured result of extracting one detail page.
type ProgramRecord struct {
	Title                 string        `json:"title"`
	Description           string        `json:"description"`
	ProgramSnapshot       OrderedMap    `json:"program_snapshot"`
	AdmissionRequirements []string      `json:"admission_requirements"`
	ProgramBenefits       []string      `json:"program_benefits"`
	ContactInfo           ContactInfo   `json:"contact_info"`
	RelatedPrograms       []ProgramLink `json:"related_programs"`
	KeySections           OrderedMap    `json:"key_sections"`
	AllText               string        `json:"all_text"`
	ScrapedURL            string        `json:"scraped_url,omitempty"`
	ScrapedDegreeName     string        `json:"scraped_degree_name,omitempty"`
}

// NewProgramRecord returns a record with every field at its "not found" value.
func NewProgramRecord() ProgramRecord {
	return ProgramRecord{
		Title:                 TitleNotFound,
		Description:           DescriptionNotFound,
		AdmissionRequirements: []string{},
		ProgramBenefits:       []string{},
		RelatedPrograms:       []ProgramLink{},
	}
}

// IsEmpty reports whether every field of the record is at its sentinel or
// empty value, meaning the page yielded nothing usable.
func (r ProgramRecord) IsEmpty() bool {
	return (r.Title == "" || r.Title == TitleNotFound) &&
		(r.Description == "" || r.Description == DescriptionNotFound) &&
		r.ProgramSnapshot.Len() == 0 &&
		len(r.AdmissionRequirements) == 0 &&
		len(r.ProgramBenefits) == 0 &&
		r.ContactInfo.IsEmpty() &&
		len(r.RelatedPrograms) == 0 &&
		r.KeySections.Len() == 0 &&
		r.AllText == ""
}

// AggregatedResult is the ordered list of successful records for a run.
type AggregatedResult []ProgramRecord

// RunState tracks how far a run progressed.
type RunState string

// Run states in the order a successful run visits them.
const (
	StateInit            RunState = "INIT"
	StateListingFetched  RunState = "LISTING_FETCHED"
	StateDetailsInFlight RunState = "DETAILS_IN_FLIGHT"
	StateAggregated      RunState = "AGGREGATED"
	StatePublished       RunState = "PUBLISHED"
	StateFailed          RunState = "FAILED"
)

// PublishReport summarises one full-refresh publish to an index backend.
type PublishReport struct {
	Backend  string            `json:"backend"`
	Uploaded int               `json:"new_uploads"`
	Updated  int               `json:"updated_files"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// RunSummary is emitted at the end of every run and returned by the API.
type RunSummary struct {
	RunID        string         `json:"run_id"`
	State        RunState       `json:"state"`
	ListingURL   string         `json:"listing_url"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Listed       int            `json:"listed"`
	Succeeded    int            `json:"succeeded"`
	Dropped      int            `json:"dropped"`
	Publish      *PublishReport `json:"publish,omitempty"`
	PublishError string         `json:"publish_error,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Duration returns the wall-clock length of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Attributes returns message attributes that let subscribers filter run
// notifications without decoding the body.
func (s RunSummary) Attributes() map[string]string {
	return map[string]string{
		"event":  "run.finished",
		"run_id": s.RunID,
		"state":  string(s.State),
	}
}

// Message renders a one-line human summary of the run.
func (s RunSummary) Message() string {
	if s.State == StateFailed {
		return fmt.Sprintf("run %s failed: %s", s.RunID, s.Error)
	}
	msg := fmt.Sprintf("scraped %d of %d programs", s.Succeeded, s.Listed)
	switch {
	case s.Publish != nil:
		msg += fmt.Sprintf("; indexed %d new and %d updated documents in %s", s.Publish.Uploaded, s.Publish.Updated, s.Publish.Backend)
		if s.Publish.Failed > 0 {
			msg += fmt.Sprintf(" (%d failed)", s.Publish.Failed)
		}
	case s.PublishError != "":
		msg += "; index publish failed: " + s.PublishError
	}
	return msg
}
