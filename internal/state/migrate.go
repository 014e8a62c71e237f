package state

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func (s *SQLiteStore) migrations() (*goose.Provider, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to set up migrations: %w", err)
	}
	return p, nil
}

// Migrate applies pending schema migrations.
func (s *SQLiteStore) Migrate() error {
	p, err := s.migrations()
	if err != nil {
		return err
	}
	applied, err := p.Up(ctx())
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range applied {
		s.logger.Debug("applied state migration",
			slog.Int64("version", r.Source.Version),
			slog.Duration("took", r.Duration))
	}
	return nil
}

// SchemaVersion returns the last applied migration version.
func (s *SQLiteStore) SchemaVersion() (int64, error) {
	p, err := s.migrations()
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx())
}

// PendingMigrations reports whether the schema is behind the binary.
func (s *SQLiteStore) PendingMigrations() (bool, error) {
	p, err := s.migrations()
	if err != nil {
		return false, err
	}
	return p.HasPending(ctx())
}
