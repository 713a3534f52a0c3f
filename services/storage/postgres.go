package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sjsage522/flatworker/logger"
	"sjsage522/flatworker/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS apartments (
	id           BIGSERIAL PRIMARY KEY,
	external_id  TEXT             NOT NULL UNIQUE,
	price        INTEGER          NOT NULL,
	rooms        INTEGER          NOT NULL,
	floor        INTEGER          NOT NULL,
	total_floors INTEGER          NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	address      TEXT             NOT NULL DEFAULT '',
	distance     DOUBLE PRECISION NOT NULL DEFAULT 0,
	description  TEXT             NOT NULL DEFAULT '',
	url          TEXT             NOT NULL,
	approved     BOOLEAN          NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ      NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_apartments_price ON apartments(price);
CREATE INDEX IF NOT EXISTS idx_apartments_distance ON apartments(distance);
`

const insertListing = `
INSERT INTO apartments (external_id, price, rooms, floor, total_floors, lat, lon, address, distance, description, url, approved)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (external_id) DO NOTHING
RETURNING id, created_at`

// PostgresStore persists listings in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, retrying the initial ping, and ensures the schema exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	log := logger.ForStore()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.NewConfiguration("invalid POSTGRES_DSN", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewStorage("postgres", "open pool", err)
	}

	for i := 0; i < 10; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Postgres not reachable yet")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		pool.Close()
		return nil, errors.NewStorage("postgres", "ping failed after retries", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.NewStorage("postgres", "ensure schema", err)
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Msg("Connected to Postgres")
	return &PostgresStore{pool: pool}, nil
}

// Begin starts a transaction
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.NewStorage("postgres", "begin transaction", err)
	}
	return &postgresTx{tx: tx}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Exists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM apartments WHERE external_id = $1)`, externalID).Scan(&exists)
	if err != nil {
		return false, errors.NewStorage("postgres", "existence check for "+externalID, err)
	}
	return exists, nil
}

func (t *postgresTx) InsertBatch(ctx context.Context, listings []Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(insertListing,
			l.ExternalID, l.Price, l.Rooms, l.Floor, l.TotalFloors,
			l.Lat, l.Lon, l.Address, l.Distance, l.Description, l.URL, l.Approved)
	}

	results := t.tx.SendBatch(ctx, batch)
	inserted := 0
	for i := range listings {
		l := &listings[i]
		err := results.QueryRow().Scan(&l.ID, &l.CreatedAt)
		if stderrors.Is(err, pgx.ErrNoRows) {
			// Conflict: already stored
			l.ID = 0
			continue
		}
		if err != nil {
			results.Close()
			return 0, errors.NewStorage("postgres", fmt.Sprintf("insert listing %q", l.ExternalID), err)
		}
		inserted++
	}
	if err := results.Close(); err != nil {
		return 0, errors.NewStorage("postgres", "close batch", err)
	}

	return inserted, nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return errors.NewStorage("postgres", "commit transaction", err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !stderrors.Is(err, pgx.ErrTxClosed) {
		return errors.NewStorage("postgres", "rollback transaction", err)
	}
	return nil
}
