package pinledger

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// LocalHelper prepares a deployment: schema migrations for the postgres
// backend and import of an existing JSON document into the configured store.
type LocalHelper struct {
	ConnStr string
	Store   RecordStore
	log     *zerolog.Logger
}

func NewLocalHelper(cfg *Config, store RecordStore, log *zerolog.Logger) *LocalHelper {
	return &LocalHelper{
		ConnStr: cfg.Storage.ConnStr,
		Store:   store,
		log:     nopIfNil(log),
	}
}

// migrateURL switches a postgres connection string to the scheme of the pgx
// v5 migrate driver.
func migrateURL(connStr string) string {
	for _, p := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connStr, p) {
			return "pgx5://" + strings.TrimPrefix(connStr, p)
		}
	}
	return connStr
}

// Migrate applies all pending migrations and returns a func that rolls them
// back again.
func (lh *LocalHelper) Migrate() (func(), error) {
	m, err := lh.up()
	if err != nil {
		return nil, err
	}
	return lh.teardown(m), nil
}

// MigrateUp applies all pending migrations and releases the migrator.
func (lh *LocalHelper) MigrateUp() error {
	m, err := lh.up()
	if err != nil {
		return err
	}
	srcErr, dbErr := m.Close()
	return errors.Join(srcErr, dbErr)
}

func (lh *LocalHelper) up() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(lh.ConnStr))
	if err != nil {
		return nil, err
	}
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		m.Close()
		return nil, err
	}

	ver, dirty, err := m.Version()
	if err != nil {
		m.Close()
		return nil, err
	}
	lh.log.Info().Uint("version", ver).Bool("dirty", dirty).Msg("migrations applied")
	return m, nil
}

func (lh *LocalHelper) teardown(m *migrate.Migrate) func() {
	return func() {
		defer m.Close()
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "DB cleanup migrate down: %s", err.Error())
		}
	}
}

// ImportDocument loads an account document written by an earlier deployment
// and saves it through the store. It returns the number of records imported.
func (lh *LocalHelper) ImportDocument(ctx context.Context, path string) (int, error) {
	bits, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var records []Account
	if err = json.Unmarshal(bits, &records); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.AcctNo]; dup {
			lh.log.Warn().Str("acc_no", r.AcctNo).Msg("duplicate account number in imported document")
		}
		seen[r.AcctNo] = struct{}{}
	}

	if err = lh.Store.Save(ctx, records); err != nil {
		return 0, err
	}
	lh.log.Info().Int("records", len(records)).Str("path", path).Msg("document imported")
	return len(records), nil
}
