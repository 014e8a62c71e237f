package core

import "context"

// Adapter is a warehouse connection. Compiled SQL runs through Exec;
// results are only ever read back as a single integer, such as a row count
// or the number of failing rows of a test.
type Adapter interface {
	Connect(ctx context.Context, cfg AdapterConfig) error
	Close() error
	Exec(ctx context.Context, sql string) error
	// Scalar returns the integer in the first column of the first row.
	// NULL reads as zero; no rows is an error.
	Scalar(ctx context.Context, sql string) (int64, error)
	// LoadCSV replaces table with the rows of a CSV file with a header.
	LoadCSV(ctx context.Context, table, path string) error
	// Dialect names the SQL dialect spoken, e.g. "duckdb".
	Dialect() string
}

// AdapterConfig is the resolved target handed to Connect.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	// Options are driver connection options, e.g. sslmode.
	Options map[string]string
	// Params are adapter-specific settings decoded by the adapter.
	Params map[string]any
}
