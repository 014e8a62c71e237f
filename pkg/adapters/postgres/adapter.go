// Package postgres provides the PostgreSQL warehouse adapter, built on pgx.
package postgres

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/leapgraph/pkg/adapter"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}

// Adapter runs compiled SQL against PostgreSQL through pgx.
type Adapter struct {
	adapter.SQLDB
}

// New creates an unconnected PostgreSQL adapter. A nil logger discards output.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{SQLDB: adapter.NewSQLDB(logger)}
}

// Dialect implements adapter.Adapter.
func (a *Adapter) Dialect() string { return "postgres" }

// Connect opens a pgx-backed database/sql pool and pings it.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	a.Logger.Debug("connecting to postgres",
		slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	connCfg, err := pgx.ParseConfig(buildPostgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("invalid postgres connection settings: %w", err)
	}
	if cfg.Schema != "" {
		connCfg.RuntimeParams["search_path"] = cfg.Schema
	}

	if err := a.Attach(ctx, stdlib.OpenDB(*connCfg)); err != nil {
		return fmt.Errorf("postgres %s: %w", connCfg.Host, err)
	}
	return nil
}

// buildPostgresDSN renders a key=value connection string.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	parts := []string{"host=" + host, fmt.Sprintf("port=%d", port)}
	if cfg.Database != "" {
		parts = append(parts, "dbname="+cfg.Database)
	}
	parts = append(parts, "sslmode="+sslmode)
	if cfg.Username != "" {
		parts = append(parts, "user="+cfg.Username)
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	return strings.Join(parts, " ")
}

// LoadCSV replaces tableName with the CSV contents. Every column is TEXT;
// models cast as needed.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if !a.Connected() {
		return adapter.ErrNotConnected
	}

	file, err := os.Open(filePath) //nolint:gosec // seed paths come from the project tree
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	headers, err := csv.NewReader(file).Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	if err := a.createTextTable(ctx, tableName, headers); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind CSV file: %w", err)
	}
	if err := a.copyFrom(ctx, tableName, file); err != nil {
		return fmt.Errorf("failed to copy data: %w", err)
	}
	return nil
}

func (a *Adapter) createTextTable(ctx context.Context, tableName string, columns []string) error {
	if _, err := a.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName); err != nil {
		return err
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = sanitizeIdentifier(col) + " TEXT"
	}
	_, err := a.DB.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(defs, ", ")))
	return err
}

// copyFrom streams the file through COPY FROM STDIN on a raw pgx connection.
func (a *Adapter) copyFrom(ctx context.Context, tableName string, file *os.File) error {
	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.New("connection is not a pgx connection")
		}
		copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv, HEADER true)", tableName)
		_, err := c.Conn().PgConn().CopyFrom(ctx, file, copySQL)
		return err
	})
}

// sanitizeIdentifier turns a CSV header into a column name: spaces and
// hyphens become underscores, and reserved or unusual names are quoted.
func sanitizeIdentifier(name string) string {
	safe := strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	if strings.ContainsAny(safe, "()[]{}") || isReservedWord(safe) {
		return pgx.Identifier{safe}.Sanitize()
	}
	return safe
}

var reservedWords = map[string]bool{
	"user": true, "order": true, "group": true, "table": true,
	"select": true, "from": true, "where": true, "index": true,
}

func isReservedWord(name string) bool {
	return reservedWords[strings.ToLower(name)]
}

var _ adapter.Adapter = (*Adapter)(nil)
