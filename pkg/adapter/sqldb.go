package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotConnected is returned by operations before Connect succeeds.
var ErrNotConnected = errors.New("database connection not established")

// SQLDB is a database/sql handle with the Adapter methods that do not
// depend on the driver. Concrete adapters embed it and add Connect,
// LoadCSV and Dialect.
type SQLDB struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// NewSQLDB returns an unconnected handle. A nil logger discards output.
func NewSQLDB(logger *slog.Logger) SQLDB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return SQLDB{Logger: logger}
}

// Attach pings db and keeps it. db is closed when the ping fails.
func (s *SQLDB) Attach(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.DB = db
	return nil
}

// Connected reports whether a handle is attached.
func (s *SQLDB) Connected() bool { return s.DB != nil }

// Close closes and detaches the handle. Closing twice is a no-op.
func (s *SQLDB) Close() error {
	if s.DB == nil {
		return nil
	}
	err := s.DB.Close()
	s.DB = nil
	return err
}

// Exec runs a statement that returns no rows.
func (s *SQLDB) Exec(ctx context.Context, stmt string) error {
	if s.DB == nil {
		return ErrNotConnected
	}
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Scalar implements core.Adapter.
func (s *SQLDB) Scalar(ctx context.Context, query string) (int64, error) {
	if s.DB == nil {
		return 0, ErrNotConnected
	}
	var n sql.NullInt64
	err := s.DB.QueryRowContext(ctx, query).Scan(&n)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, errors.New("query returned no rows")
	case err != nil:
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}
	return n.Int64, nil
}
