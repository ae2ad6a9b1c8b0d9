package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapwatch/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS swaps (
	pool_address  TEXT        NOT NULL,
	tx_hash       TEXT        NOT NULL,
	log_index     INTEGER     NOT NULL,
	block_number  BIGINT      NOT NULL,
	ts            BIGINT      NOT NULL,
	side          TEXT        NOT NULL,
	amount_focus  NUMERIC     NOT NULL,
	amount_other  NUMERIC     NOT NULL,
	usd           NUMERIC     NOT NULL,
	sender        TEXT        NOT NULL,
	recipient     TEXT        NOT NULL,
	decode_mode   TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS swaps_pool_ts_idx ON swaps (pool_address, ts);
CREATE TABLE IF NOT EXISTS indexer_state (
	name        TEXT PRIMARY KEY,
	last_block  BIGINT      NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store mirrors swaps into Postgres and keeps the poller watermark.
type Store struct {
	pool    *pgxpool.Pool
	address string
}

func NewStore(ctx context.Context, dsn, poolAddress string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, address: poolAddress}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the swaps and indexer_state tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Append inserts a swap. Rows already present (same tx and log index) are
// left untouched, so both channels may deliver the same log.
func (s *Store) Append(ctx context.Context, swap model.NormalizedSwap) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO swaps (
			pool_address, tx_hash, log_index, block_number, ts, side,
			amount_focus, amount_other, usd, sender, recipient, decode_mode
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		s.address,
		swap.TxHash.Hex(),
		int32(swap.LogIndex),
		int64(swap.BlockNumber),
		swap.Timestamp,
		swap.Side,
		swap.AmountFocus.String(),
		swap.AmountOther.String(),
		swap.USDEstimate.StringFixed(2),
		swap.Sender.Hex(),
		swap.Recipient.Hex(),
		swap.DecodeMode,
	)
	if err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}
	return nil
}

// LoadState returns the stored block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = now()
	`, name, int64(block))
	return err
}

// Watermark adapts the state table to the poller's watermark store, keyed by
// the watched pool address.
func (s *Store) Watermark() *Watermark {
	return &Watermark{store: s, name: "watermark:" + s.address}
}

type Watermark struct {
	store *Store
	name  string
}

func (w *Watermark) Load(ctx context.Context) (uint64, bool, error) {
	return w.store.LoadState(ctx, w.name)
}

func (w *Watermark) Save(ctx context.Context, block uint64) error {
	return w.store.SaveState(ctx, w.name, block)
}
