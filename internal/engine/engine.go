// Package engine loads, compiles and runs a project.
//
// Load discovers the project, resolves references and links the graph.
// Compile renders the selected nodes and injects their ephemeral CTEs.
// Run compiles, then executes the selection against the warehouse with a
// pool of workers fed by the graph queue, recording history in the state
// store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapgraph/internal/artifacts"
	"github.com/leapstack-labs/leapgraph/internal/compiler"
	"github.com/leapstack-labs/leapgraph/internal/config"
	"github.com/leapstack-labs/leapgraph/internal/dag"
	"github.com/leapstack-labs/leapgraph/internal/loader"
	"github.com/leapstack-labs/leapgraph/internal/manifest"
	"github.com/leapstack-labs/leapgraph/internal/state"
	"github.com/leapstack-labs/leapgraph/pkg/adapter"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// ErrNotLoaded is returned by operations that need Load first.
var ErrNotLoaded = errors.New("project not loaded: call Load first")

// Config holds engine configuration.
type Config struct {
	// ProjectDir is the root project directory.
	ProjectDir string
	// Project is the parsed project file; read from ProjectDir when nil.
	Project *core.ProjectConfig
	// StatePath is the path to the SQLite state database.
	StatePath string
	// TargetDir receives compiled SQL and graph.json. Empty disables artifacts.
	TargetDir string
	// Environment is the current environment (dev, staging, prod)
	Environment string
	// Target contains adapter/database configuration
	Target *core.TargetConfig
	// Vars override project vars.
	Vars map[string]any
	// Threads is the worker count; zero uses the target's.
	Threads int
	Flags   core.RunFlags
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger

	// Adapter replaces the adapter built from Target. It is connected
	// lazily like the built one unless Connected is set.
	Adapter core.Adapter
	// Connected marks Adapter as already connected.
	Connected bool
	// Store replaces the SQLite state store; it must be open.
	Store core.Store
}

// Engine orchestrates loading, compiling and running a project.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	// Database adapter (lazy initialized)
	db          core.Adapter
	dbConnected bool
	dbMu        sync.Mutex
	// schemas created so far
	schemas sync.Map

	store     core.Store
	ownsStore bool
	artifacts *artifacts.Writer

	project  *loader.Project
	graph    *dag.Graph
	compiler *compiler.Compiler
}

// New creates an engine. The state store is opened right away; the
// warehouse connection is made on first execution.
func New(cfg Config) (*Engine, error) {
	// Initialize logger (use discard handler if nil)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Environment == "" {
		cfg.Environment = config.DefaultEnv
	}
	if cfg.Target == nil {
		cfg.Target = &core.TargetConfig{Type: "duckdb", Database: ":memory:"}
	}
	config.ApplyTargetDefaults(cfg.Target)
	if cfg.Threads <= 0 {
		cfg.Threads = cfg.Target.Threads
	}

	logger.Debug("initializing engine",
		"project_dir", cfg.ProjectDir,
		"environment", cfg.Environment,
		"target", cfg.Target.Type,
		"threads", cfg.Threads)

	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		db:          cfg.Adapter,
		dbConnected: cfg.Adapter != nil && cfg.Connected,
		store:       cfg.Store,
	}

	if e.store == nil {
		statePath := cfg.StatePath
		if statePath == "" {
			statePath = ":memory:"
		}
		store := state.NewSQLiteStore(logger)
		if err := store.Open(statePath); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		if err := store.InitSchema(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize state schema: %w", err)
		}
		e.store = store
		e.ownsStore = true
	}

	if cfg.TargetDir != "" {
		e.artifacts = artifacts.NewWriter(cfg.TargetDir, logger)
	}

	return e, nil
}

// ensureDBConnected lazily connects to the database.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	adapterCfg := config.AdapterConfig(e.cfg.Target)
	if e.db == nil {
		db, err := adapter.NewAdapter(adapterCfg, e.logger)
		if err != nil {
			return fmt.Errorf("failed to create database adapter: %w", err)
		}
		e.db = db
	}

	e.logger.Debug("connecting to database", "adapter_type", e.cfg.Target.Type)
	if err := e.db.Connect(ctx, adapterCfg); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	e.dbConnected = true

	e.logger.Debug("database connected", "dialect", e.db.Dialect())
	return nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil && e.dbConnected {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil && e.ownsStore {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --- Getters (public accessors) ---

// Project returns the loaded project, or nil before Load.
func (e *Engine) Project() *loader.Project {
	return e.project
}

// Manifest returns the node store, or nil before Load.
func (e *Engine) Manifest() *manifest.Manifest {
	if e.project == nil {
		return nil
	}
	return e.project.Manifest
}

// Graph returns the linked dependency graph, or nil before Load.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// Store returns the state store.
func (e *Engine) Store() core.Store {
	return e.store
}

// Environment returns the environment runs are recorded under.
func (e *Engine) Environment() string {
	return e.cfg.Environment
}
