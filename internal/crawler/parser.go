package crawler

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"sjsage522/flatworker/helpers"
	"sjsage522/flatworker/logger"
	"sjsage522/flatworker/pkg/errors"
)

const (
	fieldDelimiter = "<br>"
	minFields      = 7

	coordsField  = 0
	addressField = 1
	roomsField   = 2
	floorField   = 4
	priceField   = 6
)

var hrefPattern = regexp.MustCompile(`href\s*=\s*"([^"]+)"`)

// fieldStep extracts one group of fields into the listing
type fieldStep func(fields []string, l *ParsedListing) error

// ListingParser turns raw markers into listings. Field positions are fixed by
// convention only, so every numeric group is parsed by its own step and the
// first failing step discards the whole marker.
type ListingParser struct {
	Origin string
	steps  []fieldStep
}

// NewListingParser creates a parser that resolves detail links against origin
func NewListingParser(origin string) *ListingParser {
	return &ListingParser{
		Origin: strings.TrimSuffix(origin, "/"),
		steps:  []fieldStep{parseRooms, parseFloors, parsePrice, parseCoordinates},
	}
}

// SplitFields splits a marker on <br>, unescapes each part and drops bold tags
func SplitFields(entry RawMarkerEntry) []string {
	parts := strings.Split(string(entry), fieldDelimiter)
	fields := make([]string, len(parts))
	for i, part := range parts {
		part = html.UnescapeString(part)
		part = strings.ReplaceAll(part, "<b>", "")
		part = strings.ReplaceAll(part, "</b>", "")
		fields[i] = part
	}
	return fields
}

// Parse converts one marker into a listing. A non-nil error means the marker
// was discarded; it is an IngestError naming the field and raw value.
func (p *ListingParser) Parse(entry RawMarkerEntry) (ParsedListing, error) {
	fields := SplitFields(entry)
	if len(fields) < minFields {
		return ParsedListing{}, errors.NewRecord("fields", string(entry),
			fmt.Errorf("insufficient fields: got %d, need %d", len(fields), minFields))
	}

	listing := ParsedListing{Address: fields[addressField]}
	for _, step := range p.steps {
		if err := step(fields, &listing); err != nil {
			return ParsedListing{}, err
		}
	}

	listing.URL = p.buildURL(fields)
	listing.ExternalID = listing.URL

	return listing, nil
}

// ParseAll parses every marker, logging and skipping the ones that fail
func (p *ListingParser) ParseAll(entries []RawMarkerEntry) ([]ParsedListing, ParseStats) {
	log := logger.ForParser()
	stats := ParseStats{Total: len(entries)}
	listings := make([]ParsedListing, 0, len(entries))

	for _, entry := range entries {
		listing, err := p.Parse(entry)
		if err != nil {
			stats.Malformed++
			ev := log.Debug().Err(err)
			var ie *errors.IngestError
			if stderrors.As(err, &ie) {
				ev = ev.Str("field", ie.Field).Str("raw", ie.Value)
			}
			ev.Msg("Skipping malformed marker")
			continue
		}
		listings = append(listings, listing)
	}

	stats.Parsed = len(listings)
	return listings, stats
}

// buildURL returns the absolute detail URL of the first field carrying an href
func (p *ListingParser) buildURL(fields []string) string {
	for _, field := range fields {
		if m := hrefPattern.FindStringSubmatch(field); m != nil {
			return p.Origin + m[1]
		}
		if strings.Contains(field, "href=") {
			if path, err := helpers.GetSplitPart(field, `"`, 1); err == nil && path != "" {
				return p.Origin + path
			}
		}
	}
	return ""
}

// secondToken returns the value after the label, e.g. "2" in "rooms 2"
func secondToken(field string) (string, error) {
	return helpers.GetSplitPart(field, " ", 1)
}

func parseInt(field, raw, token string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil {
		return 0, errors.NewRecord(field, raw, err)
	}
	return n, nil
}

func parseRooms(fields []string, l *ParsedListing) error {
	raw := fields[roomsField]
	token, err := secondToken(raw)
	if err != nil {
		return errors.NewRecord("rooms", raw, err)
	}
	l.Rooms, err = parseInt("rooms", raw, token)
	return err
}

func parseFloors(fields []string, l *ParsedListing) error {
	raw := fields[floorField]
	ratio, err := secondToken(raw)
	if err != nil {
		return errors.NewRecord("floor", raw, err)
	}
	current, err := helpers.GetSplitPart(ratio, "/", 0)
	if err != nil {
		return errors.NewRecord("floor", raw, err)
	}
	total, err := helpers.GetSplitPart(ratio, "/", 1)
	if err != nil {
		return errors.NewRecord("floor", raw, fmt.Errorf("malformed floor ratio %q", ratio))
	}
	if l.Floor, err = parseInt("floor", raw, current); err != nil {
		return err
	}
	l.TotalFloors, err = parseInt("total_floors", raw, total)
	return err
}

func parsePrice(fields []string, l *ParsedListing) error {
	raw := fields[priceField]
	token, err := secondToken(raw)
	if err != nil {
		return errors.NewRecord("price", raw, err)
	}
	l.Price, err = parseInt("price", raw, strings.ReplaceAll(token, ",", ""))
	return err
}

func parseCoordinates(fields []string, l *ParsedListing) error {
	raw := fields[coordsField]
	lat, err := helpers.GetSplitPart(raw, "|", 0)
	if err != nil {
		return errors.NewRecord("lat", raw, err)
	}
	lon, err := helpers.GetSplitPart(raw, "|", 1)
	if err != nil {
		return errors.NewRecord("lon", raw, err)
	}
	if l.Latitude, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return errors.NewRecord("lat", raw, err)
	}
	if l.Longitude, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil {
		return errors.NewRecord("lon", raw, err)
	}
	return nil
}
