// Package duckdb provides the DuckDB warehouse adapter.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapgraph/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DefaultSchema is the schema unqualified relations land in.
const DefaultSchema = "main"

func init() {
	adapter.Register("duckdb", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}

// Adapter runs compiled SQL against a DuckDB file or in-memory database.
type Adapter struct {
	adapter.SQLDB
}

// New creates an unconnected DuckDB adapter. A nil logger discards output.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{SQLDB: adapter.NewSQLDB(logger)}
}

// Dialect implements adapter.Adapter.
func (a *Adapter) Dialect() string { return "duckdb" }

// Connect opens the database file, or an in-memory database for ":memory:"
// and an empty path, then applies extensions, settings and secrets.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := a.Attach(ctx, db); err != nil {
		return fmt.Errorf("duckdb %s: %w", path, err)
	}

	if err := a.setup(ctx, params); err != nil {
		_ = a.Close()
		return err
	}
	if cfg.Schema != "" && cfg.Schema != DefaultSchema {
		if err := a.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+cfg.Schema); err != nil {
			_ = a.Close()
			return err
		}
	}
	return nil
}

func (a *Adapter) setup(ctx context.Context, p *Params) error {
	for _, ext := range p.Extensions {
		a.Logger.Debug("loading extension", slog.String("extension", ext))
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmt := fmt.Sprintf("SET %s = '%s'", k, escapeLiteral(p.Settings[k]))
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}

	for _, s := range p.Secrets {
		if err := a.Exec(ctx, buildCreateSecretSQL(s)); err != nil {
			return fmt.Errorf("failed to create %s secret: %w", s.Type, err)
		}
	}
	return nil
}

// LoadCSV replaces tableName with the CSV contents, inferring column types.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if !a.Connected() {
		return adapter.ErrNotConnected
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		tableName, strings.ReplaceAll(absPath, "'", "''"),
	)
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
