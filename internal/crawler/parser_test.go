package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/flatworker/pkg/errors"
)

const origin = "https://www.ss.com"

func marker(fields ...string) RawMarkerEntry {
	return RawMarkerEntry(strings.Join(fields, "<br>"))
}

func validFields() []string {
	return []string{
		"53.91|27.56|x",
		"Street 1",
		"rooms 2",
		"x",
		"floor 3/5",
		"x",
		"price 1,234",
		`<a href="/msd/x.html">x</a>`,
	}
}

func TestParseListing(t *testing.T) {
	entries, err := DecodeMarkerPayload(samplePage(samplePayload), "MARKER_DATA")
	require.NoError(t, err)

	listing, err := NewListingParser(origin).Parse(entries[0])
	require.NoError(t, err)

	assert.Equal(t, ParsedListing{
		ExternalID:  "https://www.ss.com/msd/x.html",
		Latitude:    53.91,
		Longitude:   27.56,
		Address:     "Street 1",
		Rooms:       2,
		Floor:       3,
		TotalFloors: 5,
		Price:       1234,
		URL:         "https://www.ss.com/msd/x.html",
	}, listing)
}

func TestParseListingNonNumericPrice(t *testing.T) {
	fields := validFields()
	fields[6] = "price abc"

	parser := NewListingParser(origin)
	_, err := parser.Parse(marker(fields...))
	require.Error(t, err)

	var ie *errors.IngestError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, errors.ErrorTypeRecord, ie.Type)
	assert.Equal(t, "price", ie.Field)
	assert.Equal(t, "price abc", ie.Value)

	listings, stats := parser.ParseAll([]RawMarkerEntry{marker(fields...)})
	assert.Empty(t, listings)
	assert.Equal(t, ParseStats{Total: 1, Parsed: 0, Malformed: 1}, stats)
}

func TestParseListingInsufficientFields(t *testing.T) {
	parser := NewListingParser(origin)
	for n := 0; n < minFields; n++ {
		_, err := parser.Parse(marker(validFields()[:n]...))
		assert.True(t, errors.IsType(err, errors.ErrorTypeRecord), "fields: %d", n)
	}
}

func TestParseListingMalformedFields(t *testing.T) {
	cases := map[string]func(f []string){
		"rooms missing token":   func(f []string) { f[2] = "rooms" },
		"rooms non numeric":     func(f []string) { f[2] = "rooms many" },
		"floor without ratio":   func(f []string) { f[4] = "floor 3" },
		"floor dash":            func(f []string) { f[4] = "floor -/5" },
		"total floors dash":     func(f []string) { f[4] = "floor 3/-" },
		"floor missing token":   func(f []string) { f[4] = "floor" },
		"price missing token":   func(f []string) { f[6] = "price" },
		"price double space":    func(f []string) { f[6] = "price  1,234" },
		"coordinates single":    func(f []string) { f[0] = "53.91" },
		"latitude non numeric":  func(f []string) { f[0] = "north|27.56" },
		"longitude non numeric": func(f []string) { f[0] = "53.91|east" },
	}

	parser := NewListingParser(origin)
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			fields := validFields()
			mutate(fields)
			_, err := parser.Parse(marker(fields...))
			assert.True(t, errors.IsType(err, errors.ErrorTypeRecord), "got %v", err)
		})
	}
}

func TestParseListingIsPermissive(t *testing.T) {
	fields := validFields()
	fields[2] = "rooms 0"
	fields[4] = "floor 9/5"
	fields[6] = "price -10"

	listing, err := NewListingParser(origin).Parse(marker(fields...))
	require.NoError(t, err)
	assert.Equal(t, 0, listing.Rooms)
	assert.Equal(t, 9, listing.Floor)
	assert.Equal(t, 5, listing.TotalFloors)
	assert.Equal(t, -10, listing.Price)
}

func TestParseListingUnescapesAndStripsBold(t *testing.T) {
	fields := validFields()
	fields[1] = "<b>Br&#299;v&#299;bas</b> iela 1 &amp; 2"
	fields[2] = "<b>rooms</b> 2"

	listing, err := NewListingParser(origin).Parse(marker(fields...))
	require.NoError(t, err)
	assert.Equal(t, "Brīvības iela 1 & 2", listing.Address)
	assert.Equal(t, 2, listing.Rooms)
}

func TestParseListingURL(t *testing.T) {
	parser := NewListingParser(origin + "/")

	fields := validFields()
	fields[7] = "no link here"
	listing, err := parser.Parse(marker(fields...))
	require.NoError(t, err)
	assert.Equal(t, "", listing.URL)
	assert.Equal(t, "", listing.ExternalID)

	// The first field with an href wins, wherever it is
	fields = validFields()
	fields[3] = `<a class="p" href = "/msd/first.html">`
	listing, err = parser.Parse(marker(fields...))
	require.NoError(t, err)
	assert.Equal(t, "https://www.ss.com/msd/first.html", listing.URL)

	// Fallback for unquoted-looking attributes
	fields = validFields()
	fields[7] = `<a data-x="/msd/fallback.html" href=/msd/other>`
	listing, err = parser.Parse(marker(fields...))
	require.NoError(t, err)
	assert.Equal(t, "https://www.ss.com/msd/fallback.html", listing.URL)
	assert.Equal(t, listing.URL, listing.ExternalID)
}

func TestParseAllSkipsOnlyBrokenMarkers(t *testing.T) {
	broken := validFields()
	broken[4] = "floor 3"
	second := validFields()
	second[7] = `<a href="/msd/y.html">y</a>`

	listings, stats := NewListingParser(origin).ParseAll([]RawMarkerEntry{
		marker(validFields()...),
		marker(broken...),
		"too<br>short",
		marker(second...),
	})

	assert.Equal(t, ParseStats{Total: 4, Parsed: 2, Malformed: 2}, stats)
	require.Len(t, listings, 2)
	assert.Equal(t, "https://www.ss.com/msd/x.html", listings[0].URL)
	assert.Equal(t, "https://www.ss.com/msd/y.html", listings[1].URL)
}
