package crawler

import (
	"context"
	"net/http"
)

// RawMarkerEntry is one element of the decoded marker payload: a <br>-delimited,
// HTML-escaped text blob describing a single listing
type RawMarkerEntry string

// ParsedListing is a listing extracted from one marker
type ParsedListing struct {
	ExternalID  string  `json:"external_id"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	Address     string  `json:"address"`
	Rooms       int     `json:"rooms"`
	Floor       int     `json:"floor"`
	TotalFloors int     `json:"total_floors"`
	Price       int     `json:"price"`
	URL         string  `json:"url"`
}

// MarkerSource defines the contract for anything that yields raw markers
type MarkerSource interface {
	// FetchMarkers retrieves the raw markers of the map page. It never fails:
	// any problem is logged and yields an empty result.
	FetchMarkers(ctx context.Context) []RawMarkerEntry

	// GetName returns the source's name for logging and identification
	GetName() string
}

// CookieProvider supplies the session cookies the map page requires
type CookieProvider interface {
	Cookies(ctx context.Context) ([]*http.Cookie, error)
}

// Describer fetches the free-text description of a listing's detail page
type Describer interface {
	FetchDescription(ctx context.Context, url string) string
}

// ParseStats summarises one ParseAll run
type ParseStats struct {
	Total     int
	Parsed    int
	Malformed int
}
