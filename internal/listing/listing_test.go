package listing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

const threeItemListing = `<html><body>
<div class="header"><a href="/">Home</a></div>
<div class="searchable_list">
  <ul>
    <li><a href="https://example.edu/degree/mcs">Master of Computer Science</a></li>
    <li><a href="/degree/mba">Master of Business&nbsp;Administration</a></li>
    <li><a href="https://example.edu/degree/bsn">Bachelor of Science in Nursing</a></li>
  </ul>
</div>
</body></html>`

func TestParseThreeItemsInDocumentOrder(t *testing.T) {
	t.Parallel()

	entries, err := Parse(threeItemListing, Hint{})
	require.NoError(t, err)
	require.Equal(t, []crawler.ProgramListing{
		{Name: "Master of Computer Science", URL: "https://example.edu/degree/mcs"},
		{Name: "Master of Business Administration", URL: "/degree/mba"},
		{Name: "Bachelor of Science in Nursing", URL: "https://example.edu/degree/bsn"},
	}, entries)
}

func TestParseSecondaryMarker(t *testing.T) {
	t.Parallel()

	html := `<ul class="degree-list"><li><a href="https://x/mba">Master of Business Administration</a></li></ul>`
	res, err := ParseDetailed(html, Hint{})
	require.NoError(t, err)
	require.Equal(t, "secondary", res.Matcher)
	require.Equal(t, []crawler.ProgramListing{
		{Name: "Master of Business Administration", URL: "https://x/mba"},
	}, res.Entries)
}

func TestParseKeywordContainer(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<nav><ul><li><a href="/about">About</a></li></ul></nav>
<div class="program-finder-results">
  <div class="program-header">Programs</div>
  <ol>
    <li><a href="/p/history">History, BA</a></li>
    <li><span>No link here</span></li>
    <li><a href="/p/math">Mathematics, BS</a></li>
  </ol>
</div>
</body></html>`

	res, err := ParseDetailed(html, Hint{})
	require.NoError(t, err)
	require.Equal(t, "keyword", res.Matcher)
	require.Equal(t, []crawler.ProgramListing{
		{Name: "History, BA", URL: "/p/history"},
		{Name: "Mathematics, BS", URL: "/p/math"},
	}, res.Entries)
}

func TestParseFallsBackToFirstLinkedList(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<ul><li>plain text only</li></ul>
<ul class="links"><li><a href="/a">Alpha</a></li><li><a href="/b">Beta</a></li></ul>
</body></html>`

	res, err := ParseDetailed(html, Hint{})
	require.NoError(t, err)
	require.Equal(t, "first-list", res.Matcher)
	require.Len(t, res.Entries, 2)
	require.Equal(t, "Alpha", res.Entries[0].Name)
}

func TestParseHintOverridesSelector(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<ul class="degree-list"><li><a href="/wrong">Wrong</a></li></ul>
<ul id="catalog"><li><a href="/right">Right</a></li></ul>
</body></html>`

	entries, err := Parse(html, Hint{Selector: "#catalog"})
	require.NoError(t, err)
	require.Equal(t, []crawler.ProgramListing{{Name: "Right", URL: "/right"}}, entries)
}

func TestParseNoListIsEmptyListingError(t *testing.T) {
	t.Parallel()

	_, err := Parse(`<html><body><p>No programs are listed.</p></body></html>`, Hint{})
	require.ErrorIs(t, err, crawler.ErrEmptyListing)

	var listingErr *crawler.EmptyListingError
	require.ErrorAs(t, err, &listingErr)
	require.Equal(t, []string{"selector", "secondary", "keyword", "first-list"}, listingErr.Matchers)
}

func TestParseSkipsEmptyNamesAndDuplicates(t *testing.T) {
	t.Parallel()

	html := `<ul class="degree-list">
<li><a href="/x">  </a></li>
<li><a href="">No target</a></li>
<li><a href="/y">Why</a></li>
<li><a href="/y">Why</a></li>
<li><a href="/y">Why, Again</a></li>
<li><a href="/z">Why</a></li>
</ul>`

	entries, err := Parse(html, Hint{})
	require.NoError(t, err)
	require.Equal(t, []crawler.ProgramListing{{Name: "Why", URL: "/y"}, {Name: "Why", URL: "/z"}}, entries)
}

func TestParserLogsAndReturnsEntries(t *testing.T) {
	t.Parallel()

	p := NewParser(Hint{}, nil)
	entries, err := p.Parse(threeItemListing)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	_, err = p.Parse("<html></html>")
	require.ErrorIs(t, err, crawler.ErrEmptyListing)
}
