package crawler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"sjsage522/flatworker/logger"
	"sjsage522/flatworker/pkg/errors"
	"sjsage522/flatworker/services/cache"
)

// ErrMarkerNotFound is returned when the page has no marker variable assignment
var ErrMarkerNotFound = stderrors.New("marker variable not found")

// validEscapes are the characters that may follow a backslash in a JSON string
const validEscapes = `"\/bfnrtu`

// ExtractorConfig contains configuration for a MarkerExtractor
type ExtractorConfig struct {
	URL       string
	Variable  string
	CacheKey  string
	BlockTime time.Duration
	Timeout   time.Duration
}

// MarkerExtractor pulls the embedded marker array out of the map page
type MarkerExtractor struct {
	BaseCrawler
	Variable  string
	Timeout   time.Duration
	fetchFunc func(ctx context.Context) (io.Reader, error)
}

// NewMarkerExtractor creates a new marker extractor
func NewMarkerExtractor(config ExtractorConfig, cacheSvc cache.CacheService, session CookieProvider) *MarkerExtractor {
	e := &MarkerExtractor{
		BaseCrawler: BaseCrawler{
			URL:       config.URL,
			CacheKey:  config.CacheKey,
			CacheSvc:  cacheSvc,
			BlockTime: config.BlockTime,
			Session:   session,
		},
		Variable: config.Variable,
		Timeout:  config.Timeout,
	}
	e.fetchFunc = e.fetchWithCache
	return e
}

// GetName returns the extractor name
func (e *MarkerExtractor) GetName() string {
	return "MarkerExtractor"
}

// FetchMarkers fetches the map page and decodes its marker payload
func (e *MarkerExtractor) FetchMarkers(ctx context.Context) []RawMarkerEntry {
	log := logger.ForExtractor()

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	body, err := e.fetchFunc(ctx)
	if err != nil {
		log.Warn().Err(err).Str("url", e.URL).Msg("Failed to fetch map page")
		return nil
	}

	page, err := io.ReadAll(body)
	if err != nil {
		log.Warn().Err(err).Str("url", e.URL).Msg("Failed to read map page")
		return nil
	}

	entries, err := DecodeMarkerPayload(string(page), e.Variable)
	if err != nil {
		if stderrors.Is(err, ErrMarkerNotFound) {
			// Usually an expired session; force new cookies next time
			if inv, ok := e.Session.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		log.Error().Err(err).Str("variable", e.Variable).Msg("Failed to extract marker payload")
		return nil
	}

	log.Info().Int("markers", len(entries)).Msg("Extracted marker payload")
	return entries
}

// markerPattern matches `var <variable> = [ ... ];`, non-greedy, across lines
func markerPattern(variable string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)(?:\bvar\s+)?\b` + regexp.QuoteMeta(variable) + `\s*=\s*(\[.*?\]);`)
}

// DecodeMarkerPayload locates the marker array assigned to variable in page
// and decodes it as an array of strings. A literal that fails strict decoding
// gets exactly one escape repair pass before giving up.
func DecodeMarkerPayload(page, variable string) ([]RawMarkerEntry, error) {
	match := markerPattern(variable).FindStringSubmatch(page)
	if match == nil {
		return nil, errors.NewPayload("extractor", variable, ErrMarkerNotFound)
	}
	literal := match[1]

	var markers []string
	err := json.Unmarshal([]byte(literal), &markers)
	if err != nil {
		repaired := RepairEscapes(literal)
		if repaired == literal {
			return nil, errors.NewPayload("extractor", "undecodable marker payload", err)
		}

		logger.ForExtractor().Debug().Err(err).Msg("Strict decode failed, retrying with repaired escapes")
		markers = nil
		if retryErr := json.Unmarshal([]byte(repaired), &markers); retryErr != nil {
			return nil, errors.NewPayload("extractor", "undecodable marker payload after escape repair",
				fmt.Errorf("%w (strict: %v)", retryErr, err))
		}
	}

	entries := make([]RawMarkerEntry, 0, len(markers))
	for _, m := range markers {
		entries = append(entries, RawMarkerEntry(m))
	}
	return entries, nil
}

// RepairEscapes doubles every backslash that does not start a valid JSON
// escape sequence. Valid pairs are copied through untouched, so the result of
// repairing an already valid literal is the literal itself.
func RepairEscapes(literal string) string {
	var b strings.Builder
	b.Grow(len(literal) + 16)

	for i := 0; i < len(literal); i++ {
		c := literal[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(literal) && strings.IndexByte(validEscapes, literal[i+1]) >= 0 {
			b.WriteByte(c)
			b.WriteByte(literal[i+1])
			i++
			continue
		}
		b.WriteString(`\\`)
	}

	return b.String()
}
