package extract

// Profile carries the site-specific selectors, keywords, and limits used by
// the extraction strategies. DefaultProfile suits a typical university
// program page; deployments override fields through configuration.
type Profile struct {
	// BaseURL resolves relative links in related programs.
	BaseURL string

	MinTitleLength       int
	MinDescriptionLength int
	DescriptionKeywords  []string
	MainContentSelectors []string
	BannerSelectors      []string

	SnapshotAnchors       []string
	SnapshotKeywords      []string
	SnapshotMaxLineLength int

	AdmissionAnchors   []string
	AdmissionHeadings  []string
	RequirementPhrases []string
	MinItemLength      int
	MaxRequirements    int

	BenefitKeywords []string

	RelatedHeadings    []string
	CardSelector       string
	RelatedURLKeywords []string
	MaxRelated         int

	SectionLookahead int
	MaxSectionLength int

	AllTextSelectors []string
	ContactKeywords  []string
}

// DefaultProfile returns the stock extraction profile.
func DefaultProfile() Profile {
	return Profile{
		MinTitleLength:       3,
		MinDescriptionLength: 50,
		DescriptionKeywords:  []string{"program", "degree", "master", "bachelor", "graduate", "doctor"},
		MainContentSelectors: []string{"[class*='content']", "main", "[role='main']"},
		BannerSelectors:      []string{".banner_message", "[class*='banner']", "[class*='hero']"},

		SnapshotAnchors:       []string{"snapshot"},
		SnapshotKeywords:      []string{"credit", "hour", "term", "format", "time", "degree", "duration", "length", "cost", "tuition", "delivery"},
		SnapshotMaxLineLength: 200,

		AdmissionAnchors:  []string{"admission-requirement", "admissions-requirement", "admission_requirement", "admissions_requirement", "admissionrequirement"},
		AdmissionHeadings: []string{"admission requirement", "admissions requirement"},
		RequirementPhrases: []string{
			"gpa", "bachelor", "degree", "transcript", "letter", "recommendation",
			"test", "score", "resume", "statement", "toefl", "ielts", "gre", "gmat",
			"minimum", "required", "prerequisite",
		},
		MinItemLength:   10,
		MaxRequirements: 15,

		BenefitKeywords: []string{"benefit", "outcome", "skill", "learn", "why choose", "highlight", "advantage", "career"},

		RelatedHeadings:    []string{"related degree", "related program"},
		CardSelector:       "[class*='card']",
		RelatedURLKeywords: []string{"degree", "program", "major"},
		MaxRelated:         10,

		SectionLookahead: 5,
		MaxSectionLength: 1000,

		AllTextSelectors: []string{"main", "[role='main']", "article", "#content", ".content"},
		ContactKeywords:  []string{"campus", "address", "location"},
	}
}
