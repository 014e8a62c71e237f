package engine

// materializations.go - Execution strategies for each materialization

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// executeNode runs one compiled node against the warehouse.
func (e *Engine) executeNode(ctx context.Context, node *core.Node) *core.ExecutionResult {
	start := time.Now()
	res := &core.ExecutionResult{UniqueID: node.UniqueID}

	var err error
	switch node.Config.Materialized {
	case core.MaterializationTable, core.MaterializationSnapshot:
		res.RowsAffected, err = e.executeTable(ctx, node)
	case core.MaterializationView:
		err = e.executeView(ctx, node)
	case core.MaterializationSeed:
		res.RowsAffected, err = e.executeSeed(ctx, node)
	case core.MaterializationTest:
		err = e.executeTest(ctx, node, res)
	case core.MaterializationOperation:
		err = e.db.Exec(ctx, node.InjectedCode)
	default:
		err = fmt.Errorf("unsupported materialization %q", node.Config.Materialized)
	}

	res.Duration = time.Since(start)
	if err != nil {
		res.Status = core.NodeRunStatusFailed
		res.Err = err
		res.Message = err.Error()
		return res
	}
	if res.Status == "" {
		res.Status = core.NodeRunStatusSuccess
	}
	return res
}

// executeTable replaces the node's relation with a table.
func (e *Engine) executeTable(ctx context.Context, node *core.Node) (int64, error) {
	relation := node.RelationName()

	// Whichever kind exists, drop it
	_ = e.db.Exec(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", relation))
	_ = e.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", relation))

	if err := e.ensureSchema(ctx, node); err != nil {
		return 0, err
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s AS %s", relation, node.InjectedCode)
	if err := e.db.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", relation, err)
	}

	// Table created but the count may still fail
	count, err := e.db.Scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", relation))
	if err != nil {
		e.logger.Debug("row count unavailable", "relation", relation, "error", err)
		return 0, nil
	}
	return count, nil
}

// executeView replaces the node's relation with a view.
func (e *Engine) executeView(ctx context.Context, node *core.Node) error {
	relation := node.RelationName()

	_ = e.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", relation))
	_ = e.db.Exec(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", relation))

	if err := e.ensureSchema(ctx, node); err != nil {
		return err
	}

	createSQL := fmt.Sprintf("CREATE VIEW %s AS %s", relation, node.InjectedCode)
	if err := e.db.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create view %s: %w", relation, err)
	}
	return nil
}

// executeSeed loads the node's CSV file into its relation.
func (e *Engine) executeSeed(ctx context.Context, node *core.Node) (int64, error) {
	root, ok := e.project.PackageRoots[node.PackageName]
	if !ok {
		return 0, fmt.Errorf("unknown package %q", node.PackageName)
	}
	csvPath := filepath.Join(root, filepath.FromSlash(node.OriginalFilePath))
	relation := node.RelationName()

	if err := e.ensureSchema(ctx, node); err != nil {
		return 0, err
	}
	if err := e.db.LoadCSV(ctx, relation, csvPath); err != nil {
		return 0, fmt.Errorf("failed to load seed %s: %w", node.OriginalFilePath, err)
	}

	count, err := e.db.Scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", relation))
	if err != nil {
		e.logger.Debug("row count unavailable", "relation", relation, "error", err)
		return 0, nil
	}
	return count, nil
}

// executeTest counts the rows a data test returns. Any row is a failure;
// severity warn downgrades it unless warnings are errors.
func (e *Engine) executeTest(ctx context.Context, node *core.Node, res *core.ExecutionResult) error {
	failures, err := e.db.Scalar(ctx, node.InjectedCode)
	if err != nil {
		return fmt.Errorf("failed to run test: %w", err)
	}
	res.Failures = failures
	if failures == 0 {
		return nil
	}

	res.Message = fmt.Sprintf("got %d result(s), expected 0", failures)
	if node.Config.Severity == core.SeverityLevelWarn && !e.cfg.Flags.WarnError {
		res.Status = core.NodeRunStatusWarn
		return nil
	}
	res.Status = core.NodeRunStatusFailed
	return nil
}

// ensureSchema creates the node's schema once per engine.
func (e *Engine) ensureSchema(ctx context.Context, node *core.Node) error {
	if node.Schema == "" {
		return nil
	}
	schema := node.Schema
	if node.Database != "" {
		schema = node.Database + "." + schema
	}
	if _, done := e.schemas.Load(schema); done {
		return nil
	}
	if err := e.db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	e.schemas.Store(schema, struct{}{})
	return nil
}
