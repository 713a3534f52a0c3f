package crawler

import (
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"sjsage522/flatworker/helpers"
	"sjsage522/flatworker/logger"
)

const descriptionSelector = "#msg_div_msg"

// PageDescriber reads the description block of a listing's detail page
type PageDescriber struct {
	limiter   *rate.Limiter
	selector  string
	fetchFunc func(ctx context.Context, url string) (io.Reader, error)
}

// NewPageDescriber creates a describer issuing at most rps requests per second
func NewPageDescriber(rps float64) *PageDescriber {
	return &PageDescriber{
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		selector:  descriptionSelector,
		fetchFunc: helpers.FetchWithRandomHeaders,
	}
}

// FetchDescription returns the trimmed description text, or "" on any failure
func (d *PageDescriber) FetchDescription(ctx context.Context, url string) string {
	log := logger.ForExtractor()

	if url == "" {
		return ""
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return ""
	}

	body, err := d.fetchFunc(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Failed to fetch description")
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Failed to parse description page")
		return ""
	}

	return strings.TrimSpace(doc.Find(d.selector).First().Text())
}
