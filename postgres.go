package pinledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var (
	pgSelectDocumentSQL = `
		SELECT body
		FROM ledger_documents
		WHERE key = $1;
	`

	pgUpsertDocumentSQL = `
		INSERT INTO ledger_documents (key, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET body = EXCLUDED.body, updated_at = now();
	`
)

// PostgresBlobs keeps documents in the ledger_documents table created by the
// seeder migrations.
type PostgresBlobs struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

var (
	_ BlobStore = (*PostgresBlobs)(nil)
)

func NewPostgresBlobs(connStr string, log *zerolog.Logger) (*PostgresBlobs, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	endpt := &PostgresBlobs{
		pool: pool,
		log:  nopIfNil(log),
	}
	return endpt, err
}

func (pg *PostgresBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var body []byte
	if err = conn.QueryRow(ctx, pgSelectDocumentSQL, key).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return body, nil
}

func (pg *PostgresBlobs) Put(ctx context.Context, key string, data []byte) error {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, pgUpsertDocumentSQL, key, data)
	if err != nil {
		return err
	}
	pg.log.Debug().
		Str("key", key).
		Int64("rows", tag.RowsAffected()).
		Int("bytes", len(data)).
		Msg("document written")

	return nil
}

func (pg *PostgresBlobs) Close() {
	pg.pool.Close()
}
