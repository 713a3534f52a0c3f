package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sjsage522/flatworker/helpers"
	"sjsage522/flatworker/internal/crawler"
	"sjsage522/flatworker/internal/geo"
	"sjsage522/flatworker/internal/params"
	"sjsage522/flatworker/logger"
	"sjsage522/flatworker/pkg/errors"
	"sjsage522/flatworker/services/publisher"
	"sjsage522/flatworker/services/storage"
)

// StreamKey is the stream field under which listings are published
const StreamKey = "b64_listing"

// Gate blocks until the worker may run an iteration
type Gate interface {
	Wait(ctx context.Context) error
}

// Worker runs the ingestion loop
type Worker struct {
	ctx           context.Context
	gate          Gate
	source        crawler.MarkerSource
	parser        *crawler.ListingParser
	filter        *geo.Filter
	store         storage.Store
	publisher     publisher.Publisher
	describer     crawler.Describer
	params        *params.Params
	logger        helpers.LoggerInterface
	crawlInterval time.Duration
}

// NewWorker creates a new worker. describer may be nil to skip descriptions
func NewWorker(
	ctx context.Context,
	gate Gate,
	source crawler.MarkerSource,
	parser *crawler.ListingParser,
	filter *geo.Filter,
	store storage.Store,
	pub publisher.Publisher,
	describer crawler.Describer,
	p *params.Params,
	logger helpers.LoggerInterface,
	crawlInterval time.Duration,
) *Worker {
	if filter == nil {
		filter = geo.NewFilter()
	}
	if pub == nil {
		pub = publisher.Nop{}
	}
	return &Worker{
		ctx:           ctx,
		gate:          gate,
		source:        source,
		parser:        parser,
		filter:        filter,
		store:         store,
		publisher:     pub,
		describer:     describer,
		params:        p,
		logger:        logger,
		crawlInterval: crawlInterval,
	}
}

// Start runs iterations until the worker's context is cancelled. A failed
// iteration is logged and the loop sleeps as usual before the next one.
func (w *Worker) Start() {
	log := logger.ForIngest()
	for {
		if err := w.gate.Wait(w.ctx); err != nil {
			log.Info().Msg("Ingestion loop stopped while waiting for parameters")
			return
		}

		start := time.Now()
		if _, err := w.RunOnce(w.ctx); err != nil && w.ctx.Err() == nil {
			w.logger.LogError(w.source.GetName(), err)
		}
		log.Debug().Dur("elapsed", time.Since(start)).Msg("Iteration finished")

		select {
		case <-w.ctx.Done():
			log.Info().Msg("Ingestion loop stopped")
			return
		case <-time.After(w.crawlInterval):
		}
	}
}

// RunOnce performs one fetch, parse, filter, dedup and commit cycle and
// returns the number of inserted listings
func (w *Worker) RunOnce(ctx context.Context) (inserted int, err error) {
	runID := uuid.NewString()
	log := logger.ForIngest().With().Str("run_id", runID).Logger()

	defer func() {
		if r := recover(); r != nil {
			inserted = 0
			err = fmt.Errorf("ingestion panic: %v\n%s", r, debug.Stack())
		}
	}()

	entries, err := w.fetch(ctx)
	if err != nil {
		return 0, err
	}

	listings, stats := w.parser.ParseAll(entries)
	log.Info().
		Int("markers", stats.Total).
		Int("parsed", stats.Parsed).
		Int("malformed", stats.Malformed).
		Msg("Parsed markers")

	usable := listings[:0]
	unusable := 0
	for _, l := range listings {
		if l.ExternalID == "" {
			unusable++
			continue
		}
		usable = append(usable, l)
	}
	if unusable > 0 {
		log.Warn().Err(errors.NewUnusable("parser", "listing has no detail URL")).
			Int("count", unusable).Msg("Dropped listings without identifier")
	}

	staged, err := w.stage(ctx, usable, log)
	if err != nil {
		return 0, err
	}

	// Descriptions are fetched with no transaction open
	w.describe(ctx, staged)

	inserted, err = w.commit(ctx, staged)
	if err != nil {
		return 0, err
	}
	log.Info().Int("inserted", inserted).Int("candidates", len(usable)).Msg("Committed new listings")

	w.publish(ctx, staged)
	return inserted, nil
}

// commit inserts rows in a single transaction. Rows that were actually
// inserted come back with their ID set.
func (w *Worker) commit(ctx context.Context, rows []storage.Listing) (int, error) {
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(context.Background()); rbErr != nil {
				logger.ForIngest().Error().Err(rbErr).Msg("Rollback failed")
			}
		}
	}()

	inserted, err := tx.InsertBatch(ctx, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	committed = true
	return inserted, nil
}

// fetch runs the extractor in its own goroutine so cancellation is observed
// even while a slow fetch is in flight
func (w *Worker) fetch(ctx context.Context) ([]crawler.RawMarkerEntry, error) {
	result := make(chan []crawler.RawMarkerEntry, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ForIngest().Error().Interface("panic", r).Msg("Marker fetch panicked")
				result <- nil
			}
		}()
		result <- w.source.FetchMarkers(ctx)
	}()

	select {
	case entries := <-result:
		return entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stage drops excluded and already stored listings and builds the rows to
// insert. The existence checks run in a read-only transaction that is
// released before returning.
func (w *Worker) stage(ctx context.Context, listings []crawler.ParsedListing, log zerolog.Logger) ([]storage.Listing, error) {
	refLat, refLon, hasRef := w.params.ReferencePoint()

	tx, err := w.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			log.Error().Err(rbErr).Msg("Rollback failed")
		}
	}()

	staged := make([]storage.Listing, 0, len(listings))
	seen := make(map[string]bool, len(listings))
	excluded, existing := 0, 0

	for _, l := range listings {
		if seen[l.ExternalID] {
			continue
		}
		seen[l.ExternalID] = true

		if w.filter.IsExcluded(l.Latitude, l.Longitude) {
			excluded++
			continue
		}

		exists, err := tx.Exists(ctx, l.ExternalID)
		if err != nil {
			return nil, err
		}
		if exists {
			existing++
			continue
		}

		row := storage.Listing{
			ExternalID:  l.ExternalID,
			Price:       l.Price,
			Rooms:       l.Rooms,
			Floor:       l.Floor,
			TotalFloors: l.TotalFloors,
			Lat:         l.Latitude,
			Lon:         l.Longitude,
			Address:     l.Address,
			URL:         l.URL,
		}
		if hasRef {
			row.Distance = geo.Distance(refLat, refLon, l.Latitude, l.Longitude)
		}
		staged = append(staged, row)
	}

	log.Debug().Int("excluded", excluded).Int("existing", existing).Int("staged", len(staged)).Msg("Filtered listings")
	return staged, nil
}

func (w *Worker) describe(ctx context.Context, rows []storage.Listing) {
	if w.describer == nil {
		return
	}
	for i := range rows {
		rows[i].Description = w.describer.FetchDescription(ctx, rows[i].URL)
	}
}

// publish announces the rows the store reported as inserted
func (w *Worker) publish(ctx context.Context, listings []storage.Listing) {
	published := 0
	for _, l := range listings {
		if l.ID == 0 {
			continue
		}
		published++
		data, err := json.Marshal(l)
		if err != nil {
			w.logger.LogError("Publisher", err)
			continue
		}
		if err := w.publisher.Publish(ctx, StreamKey, data); err != nil {
			w.logger.LogError("Publisher", err)
		}
	}
	if published == 0 {
		return
	}
	if err := w.publisher.TrimStreams(ctx); err != nil {
		w.logger.LogError("StreamTrimming", err)
	}
}
